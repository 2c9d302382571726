// Seeds the roster with demo players, handy for local runs.

package main

import (
	"context"
	"os"
	"time"

	"github.com/PsychoGas/squidElim/internal/config"
	"github.com/PsychoGas/squidElim/internal/entity"
	"github.com/PsychoGas/squidElim/internal/player"
	"github.com/PsychoGas/squidElim/pkg/db"
	"github.com/PsychoGas/squidElim/pkg/log"
)

var demoNames = []string{
	"Alice", "Bob", "Charlie", "Diana", "Eve",
	"Frank", "Grace", "Heidi", "Ivan", "Judy",
}

var demoAvatars = []string{
	"https://randomuser.me/api/portraits/women/1.jpg",
	"https://randomuser.me/api/portraits/men/2.jpg",
	"https://randomuser.me/api/portraits/men/3.jpg",
	"https://randomuser.me/api/portraits/women/4.jpg",
	"https://randomuser.me/api/portraits/women/5.jpg",
	"https://randomuser.me/api/portraits/men/6.jpg",
	"https://randomuser.me/api/portraits/women/7.jpg",
	"https://randomuser.me/api/portraits/men/8.jpg",
	"https://randomuser.me/api/portraits/men/9.jpg",
	"https://randomuser.me/api/portraits/women/10.jpg",
}

func main() {
	if len(os.Getenv("ENV")) == 0 {
		config.LoadDevConfig()
	}
	ctx := context.Background()
	logger := log.New(os.Getenv("VERSION"))

	dbConnWrp, dberr := db.NewDbConnection(ctx, logger)
	if dberr != nil {
		logger.Fatal().Err(dberr).Msg("Redis client couldn't be initialized.")
	}
	if cnterr := dbConnWrp.CheckDbConnection(ctx, logger); cnterr != nil {
		logger.Fatal().Err(cnterr).Msg("Redis client couldn't PING the redis-server.")
	}

	playerRepo := player.NewRepository(dbConnWrp)
	for i := range demoNames {
		seeded, dberr := playerRepo.SetPlayer(ctx, logger, entity.Player{
			Name:      demoNames[i],
			Avatar:    demoAvatars[i],
			CreatedAt: time.Now().UnixMilli(),
		})
		if dberr != nil {
			logger.Fatal().Err(dberr).Msgf("Couldn't seed player %s", demoNames[i])
		}
		logger.Info().Msgf("Seeded player %d: %s", seeded.PlayerNumber, seeded.Name)
	}
	logger.Info().Msgf("Seeded %d demo players!", len(demoNames))

	if clserr := dbConnWrp.CloseDbConnection(ctx); clserr != nil {
		logger.Error().Err(clserr).Msg("Error occured during closing the DB connection.")
	}
}
