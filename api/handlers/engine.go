package handlers

import (
	"github.com/meghashyamc/homeindex/db"
	"github.com/meghashyamc/homeindex/services/index"
)

// Engine is the set of indexing and query operations the API exposes.
type Engine interface {
	StartIndexing() (string, error)
	Cancel() bool
	Status() index.Status
	RunStatus(runID string) (index.Status, error)
	Search(query string, limit int) []db.IndexedFile
	FilesByType(fileType db.FileType) []db.IndexedFile
	FilesMatching(pattern string, limit int) ([]db.IndexedFile, error)
	RecentFiles(limit int) []db.IndexedFile
	Repositories() []db.RepositoryRecord
	Statistics() db.Statistics
}

// PolicyStore reads and replaces the indexing policy.
type PolicyStore interface {
	Policy() db.Policy
	Update(policy db.Policy) error
}
