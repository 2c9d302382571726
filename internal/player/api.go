// Exposes all of the REST APIs related to the roster in squidElim.

package player

import (
	"net/http"

	"github.com/PsychoGas/squidElim/internal/errors"
	"github.com/PsychoGas/squidElim/pkg/log"

	"github.com/gin-gonic/gin"
)

// Registers all of the REST API handlers related to internal package player onto the gin server.
// operatorGate guards the mutating elimination endpoint.
func APIHandlers(router *gin.Engine, service Service, operatorGate gin.HandlerFunc, logger log.Logger) {
	playerGroup := router.Group("/api/players")
	{
		playerGroup.GET("", listPlayers(service, logger))
		playerGroup.POST("/register", registerPlayer(service, logger))
		playerGroup.PATCH("", operatorGate, eliminatePlayer(service, logger))
	}
}

// listPlayers returns a handler which serves the full roster snapshot as a JSON array.
func listPlayers(service Service, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		roster, err := service.listplayers(gctx)
		if err != nil {
			// Error occured, might be validation or server error
			err, ok := err.(errors.ErrorResponse)
			if !ok {
				// Type assertion error
				gctx.JSON(http.StatusInternalServerError, errors.InternalServerError(""))
				return
			}
			gctx.JSON(err.Status, err)
			return
		}
		gctx.JSON(http.StatusOK, roster)
	}
}

// registerPlayer returns a handler which takes care of player registration in squidElim.
// Registering an already taken display name returns the existing player record.
func registerPlayer(service Service, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		var request struct {
			Name   string `json:"name"`
			Avatar string `json:"avatar"`
		}
		if binderr := gctx.ShouldBindJSON(&request); binderr != nil {
			// Error occured during unmarshalling request body
			gctx.JSON(http.StatusBadRequest, errors.BadRequest(""))
			return
		}

		player, created, err := service.register(gctx, request.Name, request.Avatar)
		if err != nil {
			// Error occured, might be validation or server error
			err, ok := err.(errors.ErrorResponse)
			if !ok {
				// Type assertion error
				gctx.JSON(http.StatusInternalServerError, errors.InternalServerError(""))
				return
			}
			gctx.JSON(err.Status, err)
			return
		}
		if created {
			gctx.JSON(http.StatusCreated, player)
			return
		}
		gctx.JSON(http.StatusOK, player)
	}
}

// eliminatePlayer returns a handler which takes care of eliminating a player in squidElim.
// requires the operator gate to pass.
func eliminatePlayer(service Service, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		var request struct {
			PlayerNumber uint64 `json:"playerNumber"`
		}
		if binderr := gctx.ShouldBindJSON(&request); binderr != nil {
			// Error occured during unmarshalling request body
			gctx.JSON(http.StatusBadRequest, errors.BadRequest(""))
			return
		}
		if request.PlayerNumber == 0 {
			gctx.JSON(http.StatusBadRequest, errors.BadRequest("playerNumber is required"))
			return
		}

		player, err := service.eliminate(gctx, request.PlayerNumber)
		if err != nil {
			// Error occured, might be validation or server error
			err, ok := err.(errors.ErrorResponse)
			if !ok {
				// Type assertion error
				gctx.JSON(http.StatusInternalServerError, errors.InternalServerError(""))
				return
			}
			gctx.JSON(err.Status, err)
			return
		}
		gctx.JSON(http.StatusOK, player)
	}
}
