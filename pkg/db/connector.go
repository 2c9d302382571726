// Initialization of Redis client to be used internally in squidElim.

package db

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/PsychoGas/squidElim/pkg/log"

	"github.com/go-redis/redis/v8"
)

// RedisDB represents a redis client connection to be used internally in squidElim.
type RedisDB struct {
	client       *redis.Client
	txMaxRetries int
}

// Global DB instance to be used all over squidElim.
var globalDbClient *RedisDB

// sync.Once singleton is used to make sure configs and DB instantiation is done only once.
var once sync.Once

// Client returns the redis client wrapped by RedisDB.
func (db *RedisDB) Client() *redis.Client {
	return db.client
}

// GetMaxRetries returns the number of allowed retries in a watched redis transaction
func (db *RedisDB) GetMaxRetries() int {
	return db.txMaxRetries
}

// Returns a new Redis DB connection wrapped up by RedisDB struct.
func NewDbConnection(ctx context.Context, logger log.Logger) (*RedisDB, error) {
	var cnferr error
	once.Do(func() {
		addr := os.Getenv("REDIS_ADDR")
		port := os.Getenv("REDIS_PORT")
		pwd := os.Getenv("REDIS_PASSWORD")
		if addr == "" || port == "" {
			cnferr = errors.New("improper Environment variables")
			return
		}
		dbNumber, prserr := strconv.Atoi(strings.TrimSpace(os.Getenv("REDIS_DB_NUMBER")))
		if prserr != nil {
			// Couldn't convert to int
			logger.WithCtx(ctx).Error().Err(prserr).Msg("Couldn't parse ENV: REDIS_DB_NUMBER")
			cnferr = prserr
			return
		}
		maxRetries, prserr := strconv.Atoi(strings.TrimSpace(os.Getenv("REDIS_TX_MAX_RETRIES")))
		if prserr != nil {
			// Couldn't convert to int
			logger.WithCtx(ctx).Error().Err(prserr).Msg("Couldn't parse ENV: REDIS_TX_MAX_RETRIES")
			cnferr = prserr
			return
		}

		// Initializing a connection to Redis-server
		client := redis.NewClient(&redis.Options{
			Addr:     addr + ":" + port,
			Password: pwd,
			DB:       dbNumber,
		})
		// Initializing globalDbClient once
		globalDbClient = &RedisDB{client: client, txMaxRetries: maxRetries}
	})
	if cnferr != nil {
		return nil, cnferr
	}
	return globalDbClient, nil
}

// Helper to check connection status of redis client to redis-server.
// Equivalent to a PING request on redis-server, returns PONG on success.
func (db *RedisDB) CheckDbConnection(ctx context.Context, logger log.Logger) error {
	logger.WithCtx(ctx).Info().Msg("Checking DB Connection . . .")
	// Pinging the Redis-server to check connection status
	cnterr := db.Client().Ping(ctx).Err()
	if cnterr != nil {
		// Most likely, DB connection failure
		return cnterr
	}
	// Connection successful
	logger.WithCtx(ctx).Info().Msg("Connection to DB Successful")
	return nil
}

// Helper to clean up test db after finishing squidElim tests.
func (db *RedisDB) CleanTestDbData(ctx context.Context, logger log.Logger) {
	if db.Client().Options().DB == 1 {
		dberr := db.Client().FlushDB(ctx).Err()
		if dberr != nil {
			// Error during flushing test db
			logger.Error().Err(dberr).Msg("Error occured during the execution of FlushDB() in db.CleanTestDbData")
		}
	}
}

// Helper to close the RedisDB client, should be called before closing the server.
func (db *RedisDB) CloseDbConnection(ctx context.Context) error {
	return db.Client().Close()
}
