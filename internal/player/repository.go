// Player repository encapsulates the data access logic (interactions with the DB) related to the roster in squidElim.

package player

import (
	"context"
	"sort"
	"strconv"

	"github.com/PsychoGas/squidElim/internal/entity"
	"github.com/PsychoGas/squidElim/internal/errors"
	"github.com/PsychoGas/squidElim/pkg/db"
	"github.com/PsychoGas/squidElim/pkg/log"

	"github.com/go-redis/redis/v8"
)

type Repository interface {
	// GetPlayer returns the player with playerNumber if exists.
	GetPlayer(ctx context.Context, logger log.Logger, playerNumber uint64) (entity.Player, error)
	// SetPlayer assigns the next player number and saves the player into the DB.
	SetPlayer(ctx context.Context, logger log.Logger, player entity.Player) (entity.Player, error)
	// RegisterPlayer atomically gets-or-creates a player by display name and
	// enforces the roster cap. The returned boolean is true when a fresh
	// record got created.
	RegisterPlayer(ctx context.Context, logger log.Logger, player entity.Player, maxRoster int64) (entity.Player, bool, error)
	// GetAllPlayers returns the full roster, sorted by player number.
	GetAllPlayers(ctx context.Context, logger log.Logger) ([]entity.Player, error)
	// EliminatePlayer conditionally marks the player eliminated at timestamp at.
	// The commit only happens if the player is currently alive; a request which
	// lost the race to another one gets Conflict instead of a silent rewrite.
	EliminatePlayer(ctx context.Context, logger log.Logger, playerNumber uint64, at int64) (entity.Player, error)
}

// repository struct of player Repository.
// Object of this will be passed around from main to internal.
// Helps to access the repository layer interface and call methods.
type repository struct {
	db *db.RedisDB
}

// Returns a new instance of player repository for other packages to access its interface.
func NewRepository(dbwrp *db.RedisDB) Repository {
	return repository{db: dbwrp}
}

// Helper to build the roster hash key of a player number.
func playerKey(playerNumber uint64) string {
	return "player:" + strconv.FormatUint(playerNumber, 10)
}

// Returns the player data object if player with the given number is found in the DB.
func (r repository) GetPlayer(ctx context.Context, logger log.Logger, playerNumber uint64) (entity.Player, error) {
	player := entity.Player{}
	available, dberr := r.db.Client().Exists(ctx, playerKey(playerNumber)).Result()
	if dberr != nil && dberr != redis.Nil {
		// Error during interacting with DB
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.Exists() in player.GetPlayer")
		return player, errors.InternalServerError("")
	} else if available == 0 {
		// Player not available
		return player, errors.NotFound("Player not available")
	}
	if dberr := r.db.Client().HGetAll(ctx, playerKey(playerNumber)).Scan(&player); dberr != nil {
		// Error during interacting with DB
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.HGetAll() in player.GetPlayer")
		return player, errors.InternalServerError("")
	}
	return player, nil
}

// Assigns the next player number to player and saves it into the DB.
// Player numbers come from a monotonic counter and are never reused.
func (r repository) SetPlayer(ctx context.Context, logger log.Logger, player entity.Player) (entity.Player, error) {
	number, dberr := r.db.Client().Incr(ctx, "player:counter").Result()
	if dberr != nil {
		// Error during interacting with DB
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.Incr() in player.SetPlayer")
		return entity.Player{}, errors.InternalServerError("")
	}
	player.PlayerNumber = uint64(number)
	player.Eliminated = false
	player.EliminatedAt = 0

	key := playerKey(player.PlayerNumber)
	_, dberr = r.db.Client().TxPipelined(ctx, func(client redis.Pipeliner) error {
		client.HSet(ctx, key, "player_number", player.PlayerNumber)
		client.HSet(ctx, key, "name", player.Name)
		client.HSet(ctx, key, "avatar", player.Avatar)
		client.HSet(ctx, key, "eliminated", player.Eliminated)
		client.HSet(ctx, key, "eliminated_at", player.EliminatedAt)
		client.HSet(ctx, key, "created_at", player.CreatedAt)
		// Indexes for list-all and lookup-by-name
		client.SAdd(ctx, "player:index", player.PlayerNumber)
		client.HSet(ctx, "player:names", player.Name, player.PlayerNumber)
		return nil
	})
	if dberr != nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured in SetPlayer transaction")
		return entity.Player{}, errors.InternalServerError("")
	}
	return player, nil
}

// Gets-or-creates a player by display name inside a watched transaction.
// Watching the name and roster indexes keeps registration atomic: two racing
// requests for the same name resolve to one player number, and two racing
// requests at the roster cap admit at most one of them.
func (r repository) RegisterPlayer(ctx context.Context, logger log.Logger, player entity.Player, maxRoster int64) (entity.Player, bool, error) {
	created := false
	txf := func(tx *redis.Tx) error {
		created = false
		number, dberr := tx.HGet(ctx, "player:names", player.Name).Uint64()
		if dberr != nil && dberr != redis.Nil {
			return dberr
		} else if dberr == nil {
			// Name already registered, hand back the existing record
			return tx.HGetAll(ctx, playerKey(number)).Scan(&player)
		}

		count, dberr := tx.SCard(ctx, "player:index").Result()
		if dberr != nil && dberr != redis.Nil {
			return dberr
		} else if count >= maxRoster {
			return errors.BadRequest("Roster is full")
		}

		// Counter values burnt by a lost optimistic lock are never handed out,
		// numbers stay monotonic either way
		next, dberr := r.db.Client().Incr(ctx, "player:counter").Result()
		if dberr != nil {
			return dberr
		}
		player.PlayerNumber = uint64(next)
		player.Eliminated = false
		player.EliminatedAt = 0

		key := playerKey(player.PlayerNumber)
		_, dberr = tx.TxPipelined(ctx, func(client redis.Pipeliner) error {
			client.HSet(ctx, key, "player_number", player.PlayerNumber)
			client.HSet(ctx, key, "name", player.Name)
			client.HSet(ctx, key, "avatar", player.Avatar)
			client.HSet(ctx, key, "eliminated", player.Eliminated)
			client.HSet(ctx, key, "eliminated_at", player.EliminatedAt)
			client.HSet(ctx, key, "created_at", player.CreatedAt)
			client.SAdd(ctx, "player:index", player.PlayerNumber)
			client.HSet(ctx, "player:names", player.Name, player.PlayerNumber)
			return nil
		})
		if dberr == nil {
			created = true
		}
		return dberr
	}
	for i := 0; i < r.db.GetMaxRetries(); i++ {
		dberr := r.db.Client().Watch(ctx, txf, "player:names", "player:index")
		if dberr == nil {
			return player, created, nil
		} else if dberr == redis.TxFailedErr {
			// Optimistic lock lost. Retry.
			continue
		}
		if apperr, ok := dberr.(errors.ErrorResponse); ok {
			// Validation verdicts (roster full) pass through unchanged
			return entity.Player{}, false, apperr
		}
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured in RegisterPlayer transaction")
		return entity.Player{}, false, errors.InternalServerError("")
	}
	logger.WithCtx(ctx).Error().Msg("RegisterPlayer transaction reached maximum number of retries")
	return entity.Player{}, false, errors.InternalServerError("")
}

// Returns the full roster sorted by player number.
func (r repository) GetAllPlayers(ctx context.Context, logger log.Logger) ([]entity.Player, error) {
	members, dberr := r.db.Client().SMembers(ctx, "player:index").Result()
	if dberr != nil && dberr != redis.Nil {
		// Error during interacting with DB
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.SMembers() in player.GetAllPlayers")
		return []entity.Player{}, errors.InternalServerError("")
	}
	numbers := make([]uint64, 0, len(members))
	for _, member := range members {
		number, prserr := strconv.ParseUint(member, 10, 64)
		if prserr != nil {
			logger.WithCtx(ctx).Error().Err(prserr).Msg("Corrupted player number found in player:index")
			return []entity.Player{}, errors.InternalServerError("")
		}
		numbers = append(numbers, number)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	roster := make([]entity.Player, 0, len(numbers))
	for _, number := range numbers {
		player, err := r.GetPlayer(ctx, logger, number)
		if err != nil {
			// Issues in GetPlayer()
			return []entity.Player{}, err
		}
		roster = append(roster, player)
	}
	return roster, nil
}

// Conditionally flips the player's eliminated flag inside a watched transaction.
// The commit is skipped and Conflict returned when the player is already
// eliminated, so the second of two racing requests observes a no-op and no
// duplicate broadcast can follow.
func (r repository) EliminatePlayer(ctx context.Context, logger log.Logger, playerNumber uint64, at int64) (entity.Player, error) {
	key := playerKey(playerNumber)
	player := entity.Player{}
	txf := func(tx *redis.Tx) error {
		available, dberr := tx.Exists(ctx, key).Result()
		if dberr != nil && dberr != redis.Nil {
			return dberr
		} else if available == 0 {
			return errors.NotFound("Player not available")
		}
		if dberr := tx.HGetAll(ctx, key).Scan(&player); dberr != nil {
			return dberr
		}
		if player.Eliminated {
			return errors.Conflict("Player already eliminated")
		}
		player.Eliminated = true
		player.EliminatedAt = at
		// Operation is commited only if the watched key remains unchanged
		_, dberr = tx.TxPipelined(ctx, func(client redis.Pipeliner) error {
			client.HSet(ctx, key, "eliminated", true)
			client.HSet(ctx, key, "eliminated_at", at)
			return nil
		})
		return dberr
	}
	for i := 0; i < r.db.GetMaxRetries(); i++ {
		dberr := r.db.Client().Watch(ctx, txf, key)
		if dberr == nil {
			// The updated record comes from the reads made inside the
			// transaction; a second fetch here could fail after the commit
			// and leave a committed elimination without its broadcast.
			return player, nil
		} else if dberr == redis.TxFailedErr {
			// Optimistic lock lost. Retry.
			continue
		}
		if apperr, ok := dberr.(errors.ErrorResponse); ok {
			// Validation verdicts (NotFound / Conflict) pass through unchanged
			return entity.Player{}, apperr
		}
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured in EliminatePlayer transaction")
		return entity.Player{}, errors.InternalServerError("")
	}
	logger.WithCtx(ctx).Error().Msg("EliminatePlayer transaction reached maximum number of retries")
	return entity.Player{}, errors.InternalServerError("")
}
