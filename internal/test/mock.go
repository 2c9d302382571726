// Mock methods required in squidElim tests are all here.

package test

import (
	"os"
	"sync"

	"github.com/PsychoGas/squidElim/pkg/middlewares"

	"github.com/gin-gonic/gin"
)

// Global instance of gin MockRouter to be used during API testing.
var testRouter *gin.Engine

// Singleton to make sure testRouter is initialized only once.
var once sync.Once

func MockRouter() *gin.Engine {
	once.Do(func() {
		// Initializing the gin test server
		ginMode := os.Getenv("GIN_MODE")
		gin.SetMode(ginMode)
		testRouter = gin.Default()
		testRouter.Use(middlewares.CORSMiddleware("*")) // CORS middleware which allows request from all origin
	})
	return testRouter
}
