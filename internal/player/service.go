// Service layer of the internal package player.

package player

import (
	"context"
	"strings"
	"time"

	"github.com/PsychoGas/squidElim/internal/elimination"
	"github.com/PsychoGas/squidElim/internal/entity"
	"github.com/PsychoGas/squidElim/internal/errors"
	"github.com/PsychoGas/squidElim/pkg/log"

	"github.com/asaskevich/govalidator"
)

// Product caps the game at 100 participants.
const maxRosterSize = 100

// Service layer of internal package player which encapsulates roster logic of squidElim.
type Service interface {
	// Registers a new player or returns the already registered one with the same name.
	// The returned boolean is true when a fresh player record got created.
	register(ctx context.Context, name, avatar string) (entity.Player, bool, error)
	// Returns the full roster snapshot.
	listplayers(ctx context.Context) ([]entity.Player, error)
	// Validates and applies an elimination request, then broadcasts exactly one
	// event for it. Broadcast happens only after the store commit succeeded.
	eliminate(ctx context.Context, playerNumber uint64) (entity.Player, error)
}

// Object of this will be passed around from main to routers to API.
// Helps to access the service layer interface and call methods.
// Also helps to pass objects to be used from outer layer.
type service struct {
	playerRepo Repository
	publisher  *elimination.Publisher
	logger     log.Logger
}

// Helps to access the service layer interface and call methods. Service object is passed from main.
func NewService(playerRepo Repository, publisher *elimination.Publisher, logger log.Logger) Service {
	return service{playerRepo, publisher, logger}
}

func (s service) register(ctx context.Context, name, avatar string) (entity.Player, bool, error) {
	player := entity.Player{
		Name:      strings.TrimSpace(name),
		Avatar:    avatar,
		CreatedAt: time.Now().UnixMilli(),
	}
	if player.Avatar == "" {
		player.Avatar = entity.DefaultAvatar
	}
	if _, valerr := govalidator.ValidateStruct(player); valerr != nil {
		// Validation issues found in the registration payload
		return entity.Player{}, false, errors.GenerateValidationErrorResponse(valerr.(govalidator.Errors).Errors())
	}

	// Name lookup, roster-cap check and the write happen atomically in the
	// store; an existing display name resolves to the registered record.
	registered, created, dberr := s.playerRepo.RegisterPlayer(ctx, s.logger, player, maxRosterSize)
	if dberr != nil {
		// Issues in RegisterPlayer()
		return entity.Player{}, false, dberr
	}
	return registered, created, nil
}

func (s service) listplayers(ctx context.Context) ([]entity.Player, error) {
	return s.playerRepo.GetAllPlayers(ctx, s.logger)
}

func (s service) eliminate(ctx context.Context, playerNumber uint64) (entity.Player, error) {
	// Precondition check before the mutating write; the store commit below
	// re-checks conditionally, so two racing requests can't both pass here
	// and both broadcast.
	player, dberr := s.playerRepo.GetPlayer(ctx, s.logger, playerNumber)
	if dberr != nil {
		// Error occured in GetPlayer()
		return entity.Player{}, dberr
	} else if player.Eliminated {
		return entity.Player{}, errors.Conflict("Player already eliminated")
	}

	updated, dberr := s.playerRepo.EliminatePlayer(ctx, s.logger, playerNumber, time.Now().UnixMilli())
	if dberr != nil {
		// Commit failed or lost the race, no broadcast happens
		return entity.Player{}, dberr
	}

	// Fan-out is fire-and-forget relative to this request's response;
	// Publish never blocks on or errors for any individual subscriber.
	s.publisher.Publish(entity.EliminationEvent{PlayerNumber: updated.PlayerNumber})
	s.logger.WithCtx(ctx).Info().Msgf("Player %d eliminated and broadcasted", updated.PlayerNumber)

	return updated, nil
}
