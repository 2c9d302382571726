// List of all REST API endpoints being used by squidElim can be found here.

package main

import (
	"net/http"
	"os"

	"github.com/PsychoGas/squidElim/internal/auth"
	"github.com/PsychoGas/squidElim/internal/elimination"
	"github.com/PsychoGas/squidElim/internal/player"
	"github.com/PsychoGas/squidElim/pkg/db"
	"github.com/PsychoGas/squidElim/pkg/log"

	"github.com/gin-gonic/gin"
)

func Router(router *gin.Engine, dbConnWrp *db.RedisDB, publisher *elimination.Publisher, logger log.Logger) {
	// This is the route to default path
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Welcome to squidElim!")
	})

	// Repositories and services needed by the APIs to work
	playerRepo := player.NewRepository(dbConnWrp)
	playerService := player.NewService(playerRepo, publisher, logger)

	// Only the operator console may eliminate players
	operatorGate := auth.OperatorMiddleware(logger, os.Getenv("OPERATOR_PIN"))

	// Register internal package handlers
	player.APIHandlers(router, playerService, operatorGate, logger)
	elimination.APIHandlers(router, publisher, logger)
}
