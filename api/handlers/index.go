package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/homeindex/logger"
	"github.com/meghashyamc/homeindex/services/index"
	"github.com/meghashyamc/homeindex/validation"
)

type RunRequest struct {
	ID string `uri:"id" json:"id" validate:"required,uuid"`
}

type IndexResponse struct {
	ID    string      `json:"id"`
	State index.State `json:"state"`
}

func SetupIndex(router *gin.Engine, logger logger.Logger, engine Engine, validator *validation.Validator) {
	router.POST("/index", handleIndex(engine, logger))
	router.GET("/index/status", handleIndexStatus(engine))
	router.GET("/index/:id", handleRunStatus(engine, logger, validator))
	router.DELETE("/index", handleCancelIndex(engine))
}

func handleIndex(engine Engine, logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		runID, err := engine.StartIndexing()
		if err != nil && !errors.Is(err, index.ErrIndexingInProgress) {
			logger.Warn("could not start indexing", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		writeResponse(c, IndexResponse{ID: runID, State: index.StateIndexing}, http.StatusAccepted, nil)
	}
}

func handleIndexStatus(engine Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		writeResponse(c, engine.Status(), http.StatusOK, nil)
	}
}

func handleRunStatus(engine Engine, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := RunRequest{}
		if err := c.ShouldBindUri(&request); err != nil {
			logger.Warn("could not extract run id from request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request path parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate run status request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		status, err := engine.RunStatus(request.ID)
		if err != nil {
			if errors.Is(err, index.ErrRunNotFound) {
				c.Abort()
				writeResponse(c, nil, http.StatusNotFound, []string{err.Error()})
				return
			}
			logger.Error("could not get run status", "run_id", request.ID, "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		writeResponse(c, status, http.StatusOK, nil)
	}
}

func handleCancelIndex(engine Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !engine.Cancel() {
			writeResponse(c, nil, http.StatusConflict, []string{"no indexing run in progress"})
			return
		}

		writeResponse(c, nil, http.StatusNoContent, nil)
	}
}
