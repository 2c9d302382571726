// The main file of squidElim.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/PsychoGas/squidElim/internal/config"
	"github.com/PsychoGas/squidElim/internal/elimination"
	"github.com/PsychoGas/squidElim/internal/player"
	"github.com/PsychoGas/squidElim/pkg/cleanup"
	"github.com/PsychoGas/squidElim/pkg/db"
	"github.com/PsychoGas/squidElim/pkg/log"
	"github.com/PsychoGas/squidElim/pkg/middlewares"
	"github.com/PsychoGas/squidElim/pkg/validations"

	"github.com/asaskevich/govalidator"
	"github.com/gin-gonic/gin"
)

var (
	// Indicates the current version of squidElim.
	Version = "1.0.0"
	// Address and Port to be used by gin.
	srvaddr, srvport string
)

func init() {
	// Local runs load the dev env file, deployments inject env directly.
	if len(os.Getenv("ENV")) == 0 {
		config.LoadDevConfig()
	}

	// Fetching addr and port depending upon env flag.
	srvaddr, srvport = os.Getenv("SRV_ADDR"), os.Getenv("SRV_PORT")
	// This is the preferred mode used by gin server in DEV environment.
	if os.Getenv("ENV") == "DEV" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
}

func main() {
	ctx := context.Background()
	logger := log.New(Version)
	logger.Info().Msg(fmt.Sprintf("Welcome to squidElim: v%s", Version))
	logger.Info().Msg(fmt.Sprintf("squidElim Environment: %s", os.Getenv("ENV")))

	// Db client instance.
	dbConnWrp, dberr := db.NewDbConnection(ctx, logger)
	if dberr != nil {
		logger.Fatal().Err(dberr).Msg("Redis client couldn't be initialized.")
	}
	// Sending a PING request to DB for connection status check.
	if cnterr := dbConnWrp.CheckDbConnection(ctx, logger); cnterr != nil {
		logger.Fatal().Err(cnterr).Msg("Redis client couldn't PING the redis-server.")
	}

	// Registering validations used by the roster APIs.
	govalidator.SetFieldsRequiredByDefault(true)
	validations.RegisterCustomValidations(ctx, logger)
	player.RegisterCustomValidations(ctx, logger)

	// The process-wide elimination publisher, owner of the subscriber set.
	// Starts empty on every boot; viewers resubscribe and refetch the roster.
	publisher := elimination.NewPublisher(logger)

	// Initializing the gin server.
	server := gin.New()

	// Forcing gin to use custom Logger instead of the default one.
	server.Use(log.LoggerGinExtension(logger))
	server.Use(gin.Recovery())
	server.Use(middlewares.CORSMiddleware("*"))
	server.Use(middlewares.UniqueIDMiddleware(logger))
	server.Use(middlewares.CorrelationMiddleware(logger))

	// Running Router() which routes all of the REST API groups and paths.
	Router(server, dbConnWrp, publisher, logger)

	// Running the server with defined addr and port.
	srv := &http.Server{
		Addr:    srvaddr + ":" + srvport,
		Handler: server,
	}

	// ListenAndServe is a blocking operation, putting it a goroutine
	go func() {
		logger.Info().Msg(fmt.Sprintf("squidElim service running at: %s", srvaddr+":"+srvport))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Error in ListenAndServe()")
		}
	}()

	// Graceful shutdown of squidElim server triggered due to system interruptions.
	wait := cleanup.GracefulShutdown(ctx, logger, 5*time.Second, map[string]cleanup.Operation{
		"Elimination-publisher": func(ctx context.Context) error {
			// Dropping every subscriber also terminates open stream connections
			return publisher.Close()
		},
		"Redis-server": func(ctx context.Context) error {
			return dbConnWrp.CloseDbConnection(ctx)
		},
		"Gin": func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
	<-wait
}
