package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/homeindex/api/handlers"
	"github.com/meghashyamc/homeindex/logger"
	"github.com/meghashyamc/homeindex/validation"
)

func setupRoutes(router *gin.Engine, logger logger.Logger, engine handlers.Engine, policies handlers.PolicyStore, validator *validation.Validator) {
	router.GET("/health", health())

	handlers.SetupIndex(router, logger, engine, validator)
	handlers.SetupSearch(router, logger, engine, validator)
	handlers.SetupFiles(router, logger, engine, validator)
	handlers.SetupSettings(router, logger, policies, validator)

}

func health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	}
}

func newRouter() *gin.Engine {
	router := gin.Default()
	router.UseRawPath = true
	router.Use(_CORSMiddleware())
	router.Use(gin.Recovery())

	return router
}
