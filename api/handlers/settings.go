package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/homeindex/db"
	"github.com/meghashyamc/homeindex/logger"
	"github.com/meghashyamc/homeindex/validation"
)

func SetupSettings(router *gin.Engine, logger logger.Logger, policies PolicyStore, validator *validation.Validator) {
	router.GET("/settings", handleGetSettings(policies))
	router.PUT("/settings", handleUpdateSettings(policies, logger, validator))
}

func handleGetSettings(policies PolicyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		writeResponse(c, policies.Policy(), http.StatusOK, nil)
	}
}

func handleUpdateSettings(policies PolicyStore, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := db.Policy{}
		if err := c.ShouldBindJSON(&request); err != nil {
			logger.Warn("could not extract expected fields from settings request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request body parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate settings request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		if err := policies.Update(request); err != nil {
			logger.Error("could not update settings", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		writeResponse(c, policies.Policy(), http.StatusOK, nil)
	}
}
