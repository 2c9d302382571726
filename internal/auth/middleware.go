// Operator middleware is used to validate the operator PIN sent via header.
// Only the operator console is allowed to eliminate players.

package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/PsychoGas/squidElim/internal/errors"
	"github.com/PsychoGas/squidElim/pkg/log"

	"github.com/gin-gonic/gin"
)

// This middleware is used to verify the X-Operator-Pin header against the configured PIN.
// Blocks the request to go further into other handlers if the PIN doesn't match.
// An empty configured PIN disables the gate, used in local development.
func OperatorMiddleware(logger log.Logger, pin string) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		if pin == "" {
			gctx.Next()
			return
		}
		supplied := gctx.GetHeader("X-Operator-Pin")
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(pin)) != 1 {
			logger.WithCtx(gctx).Warn().Msg("Rejected elimination request with invalid operator PIN")
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, errors.Unauthorized("Invalid operator PIN"))
			return
		}
		gctx.Next()
	}
}
