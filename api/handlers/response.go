package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/homeindex/db"
)

const HeaderPaginationTotalCount = "X-Pagination-Total-Count"

type response struct {
	Data   any      `json:"data"`
	Errors []string `json:"errors"`
}

func writeResponse(c *gin.Context, data interface{}, statusCode int, errors []string) {

	if statusCode == http.StatusNoContent {
		c.Status(statusCode)
		return

	}

	response := response{
		Data:   data,
		Errors: errors,
	}

	c.JSON(statusCode, response)
}

type Pagination struct {
	CurrentPage  int  `json:"current_page"`
	PageSize     int  `json:"page_size"`
	TotalPages   int  `json:"total_pages"`
	HasNextPage  bool `json:"has_next_page"`
	HasPrevPage  bool `json:"has_prev_page"`
	TotalResults int  `json:"total_results"`
}

func calculatePagination(total, limit, offset int) Pagination {
	pageSize := limit
	currentPage := (offset / limit) + 1
	totalPages := (total + pageSize - 1) / pageSize

	if totalPages == 0 {
		totalPages = 1
	}

	return Pagination{
		CurrentPage:  currentPage,
		PageSize:     pageSize,
		TotalPages:   totalPages,
		HasNextPage:  currentPage < totalPages,
		HasPrevPage:  currentPage > 1,
		TotalResults: total,
	}
}

// FileResult is an indexed file as returned to clients. Extracted content
// is left out; keywords summarize it.
type FileResult struct {
	ID       string      `json:"id"`
	Path     string      `json:"path"`
	Name     string      `json:"name"`
	Type     db.FileType `json:"type"`
	Size     int64       `json:"size"`
	ModTime  time.Time   `json:"mod_time"`
	Keywords []string    `json:"keywords"`
}

func toFileResults(files []db.IndexedFile) []FileResult {
	results := make([]FileResult, 0, len(files))
	for _, file := range files {
		keywords := file.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		results = append(results, FileResult{
			ID:       file.ID,
			Path:     file.Path,
			Name:     file.Name,
			Type:     file.Type,
			Size:     file.Size,
			ModTime:  file.ModTime,
			Keywords: keywords,
		})
	}
	return results
}
