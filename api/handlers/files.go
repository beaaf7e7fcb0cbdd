package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/homeindex/db"
	"github.com/meghashyamc/homeindex/logger"
	"github.com/meghashyamc/homeindex/services/index"
	"github.com/meghashyamc/homeindex/validation"
)

const defaultResultsPerPage = 50

type FilesRequest struct {
	Type    string `form:"type" validate:"omitempty,valid_file_type"`
	Glob    string `form:"glob" validate:"omitempty,valid_glob,max=1000"`
	PerPage int    `form:"per_page" validate:"min=0,max=500"`
	Page    int    `form:"page" validate:"min=0"`
}

func (r *FilesRequest) setDefaults() {
	if r.PerPage == 0 {
		r.PerPage = defaultResultsPerPage
	}

	if r.Page == 0 {
		r.Page = 1
	}
}

type FilesResponse struct {
	Files       []FileResult `json:"files"`
	PageDetails Pagination   `json:"page_details"`
}

type RecentFilesRequest struct {
	Limit int `form:"limit" validate:"min=0,max=200"`
}

func SetupFiles(router *gin.Engine, logger logger.Logger, engine Engine, validator *validation.Validator) {
	router.GET("/files", handleFiles(engine, logger, validator))
	router.GET("/files/recent", handleRecentFiles(engine, logger, validator))
	router.GET("/statistics", handleStatistics(engine))
	router.GET("/repositories", handleRepositories(engine))
}

func handleFiles(engine Engine, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := FilesRequest{}
		if err := c.ShouldBindQuery(&request); err != nil {
			logger.Warn("could not extract expected params from files request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request query parameters"})
			return
		}
		request.setDefaults()

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate files request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		files, err := filterFiles(engine, request)
		if err != nil {
			logger.Error("could not list files", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		c.Header(HeaderPaginationTotalCount, strconv.Itoa(len(files)))
		offset := (request.Page - 1) * request.PerPage
		page := files[min(offset, len(files)):min(offset+request.PerPage, len(files))]

		writeResponse(c, FilesResponse{
			Files:       toFileResults(page),
			PageDetails: calculatePagination(len(files), request.PerPage, offset),
		}, http.StatusOK, nil)
	}
}

// filterFiles applies the type and glob filters of request. With neither,
// every file is returned.
func filterFiles(engine Engine, request FilesRequest) ([]db.IndexedFile, error) {
	if request.Glob == "" {
		if request.Type == "" {
			return engine.FilesMatching("**", 0)
		}
		return engine.FilesByType(db.FileType(request.Type)), nil
	}

	files, err := engine.FilesMatching(request.Glob, 0)
	if err != nil || request.Type == "" {
		return files, err
	}

	var filtered []db.IndexedFile
	for _, file := range files {
		if file.Type == db.FileType(request.Type) {
			filtered = append(filtered, file)
		}
	}
	return filtered, nil
}

func handleRecentFiles(engine Engine, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := RecentFilesRequest{}
		if err := c.ShouldBindQuery(&request); err != nil {
			logger.Warn("could not extract expected params from recent files request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request query parameters"})
			return
		}
		if request.Limit == 0 {
			request.Limit = index.DefaultRecentFilesLimit
		}

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate recent files request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		writeResponse(c, toFileResults(engine.RecentFiles(request.Limit)), http.StatusOK, nil)
	}
}

func handleStatistics(engine Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		writeResponse(c, engine.Statistics(), http.StatusOK, nil)
	}
}

func handleRepositories(engine Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		repositories := engine.Repositories()
		if repositories == nil {
			repositories = []db.RepositoryRecord{}
		}
		writeResponse(c, repositories, http.StatusOK, nil)
	}
}
