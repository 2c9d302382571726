// All custom validations related to player entity in squidElim are defined here.

package player

import (
	"context"
	"regexp"

	"github.com/PsychoGas/squidElim/pkg/log"

	"github.com/asaskevich/govalidator"
)

func RegisterCustomValidations(ctx context.Context, logger log.Logger) {
	// Player name validation.
	// Name can only contain letters, numbers, spaces, underscores & periods.
	govalidator.TagMap["playername"] = govalidator.Validator(func(str string) bool {
		pattern := regexp.MustCompile("[^a-zA-Z0-9_. ]")
		return !pattern.MatchString(str) && !govalidator.HasWhitespaceOnly(str)
	})

	logger.WithCtx(ctx).Info().Msg("Successfully registered player related custom validations.")
}
