// Exposes the live elimination stream REST API in squidElim.

package elimination

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/PsychoGas/squidElim/pkg/log"
	"github.com/PsychoGas/squidElim/pkg/middlewares"

	"github.com/gin-gonic/gin"
)

// Registers all of the REST API handlers related to internal package elimination onto the gin server.
func APIHandlers(router *gin.Engine, publisher *Publisher, logger log.Logger) {
	eliminationGroup := router.Group("/api/eliminations", middlewares.SSEMiddleware())
	{
		eliminationGroup.GET("", streamHandler(publisher, logger))
	}
}

// streamHandler returns a handler which bridges one viewer's long-lived
// connection to the Publisher. Events published before Subscribe() completed
// are never replayed; late joiners pick up prior eliminations from the
// roster snapshot instead.
func streamHandler(publisher *Publisher, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		subscriber := publisher.Subscribe()
		// Deregister exactly once, whether the viewer closed the connection,
		// the write below failed or the server is shutting down.
		defer publisher.Unsubscribe(subscriber)

		// Commit the stream headers right away, the viewer shouldn't have to
		// wait for the first elimination to see the connection as open.
		gctx.Writer.Flush()

		gctx.Stream(func(w io.Writer) bool {
			select {
			// Forward the next event to the viewer, flushed right after this step
			case event, ok := <-subscriber.Channel:
				if !ok {
					// Publisher evicted us or is shutting down
					return false
				}
				payload, mrsherr := json.Marshal(event)
				if mrsherr != nil {
					logger.WithCtx(gctx).Error().Err(mrsherr).Msg("Error occured during marshalling EliminationEvent in streamHandler")
					return false
				}
				fmt.Fprintf(w, "data: %s\n\n", payload)
				return true
			// Viewer exit
			case <-gctx.Request.Context().Done():
				return false
			}
		})
	}
}
