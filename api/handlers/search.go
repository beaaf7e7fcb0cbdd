package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/homeindex/logger"
	"github.com/meghashyamc/homeindex/services/search"
	"github.com/meghashyamc/homeindex/validation"
)

type SearchRequest struct {
	Query string `form:"query" validate:"valid_query,max=1000"`
	Limit int    `form:"limit" validate:"min=0,max=200"`
}

func (r *SearchRequest) setDefaults() {
	if r.Limit == 0 {
		r.Limit = search.DefaultSearchLimit
	}
}

type SearchResponse struct {
	Results []FileResult `json:"results"`
	Total   int          `json:"total"`
}

func SetupSearch(router *gin.Engine, logger logger.Logger, engine Engine, validator *validation.Validator) {
	router.GET("/search", handleSearch(engine, logger, validator))
}

func handleSearch(engine Engine, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := SearchRequest{}
		if err := c.ShouldBindQuery(&request); err != nil {
			logger.Warn("could not extract expected params from search request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request query parameters"})
			return
		}
		request.setDefaults()

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate search request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		results := toFileResults(engine.Search(request.Query, request.Limit))
		writeResponse(c, SearchResponse{Results: results, Total: len(results)}, http.StatusOK, nil)
	}
}
