package db

import "time"

// FileType is the semantic category of an indexed file.
type FileType string

const (
	FileTypeCode          FileType = "code"
	FileTypeDocumentation FileType = "documentation"
	FileTypeConfiguration FileType = "configuration"
	FileTypeImage         FileType = "image"
	FileTypeVideo         FileType = "video"
	FileTypeAudio         FileType = "audio"
	FileTypeOther         FileType = "other"
)

// FileTypes lists every category in a stable order.
var FileTypes = []FileType{
	FileTypeCode,
	FileTypeDocumentation,
	FileTypeConfiguration,
	FileTypeImage,
	FileTypeVideo,
	FileTypeAudio,
	FileTypeOther,
}

// IsValid reports whether t is one of the known categories.
func (t FileType) IsValid() bool {
	for _, fileType := range FileTypes {
		if t == fileType {
			return true
		}
	}
	return false
}

// IndexedFile is one indexed filesystem entry, keyed by Path.
// Content is empty and Keywords is nil when nothing was extracted.
type IndexedFile struct {
	ID       string    `json:"id"`
	Path     string    `json:"path"`
	Name     string    `json:"name"`
	Type     FileType  `json:"type"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	Content  string    `json:"content,omitempty"`
	Keywords []string  `json:"keywords,omitempty"`
}

// RepositoryRecord is a discovered version-controlled project root.
// RemoteReference is empty when no remote could be read.
type RepositoryRecord struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Path            string    `json:"path"`
	RemoteReference string    `json:"remote_reference,omitempty"`
	DiscoveredAt    time.Time `json:"discovered_at"`
}

type Statistics struct {
	TotalFiles  int       `json:"total_files"`
	TotalSize   int64     `json:"total_size"`
	LastIndexed time.Time `json:"last_indexed"`
}

// Policy is the user-tunable indexing configuration. A running pipeline
// works on a copy taken when the run starts.
type Policy struct {
	IndexHome          bool `json:"index_home"`
	IndexDocumentation bool `json:"index_documentation"`
	IndexRepositories  bool `json:"index_repositories"`

	HomeRoots          []string `json:"home_roots" validate:"dive,valid_path"`
	DocumentationRoots []string `json:"documentation_roots" validate:"dive,valid_path"`
	RepositoryRoots    []string `json:"repository_roots" validate:"dive,valid_path"`

	ExcludedPathFragments []string `json:"excluded_path_fragments" validate:"dive,required"`
	ExcludedGlobs         []string `json:"excluded_globs" validate:"dive,valid_glob"`

	MaxDepth               int   `json:"max_depth" validate:"min=0,max=256"`
	MaxFileSizeBytes       int64 `json:"max_file_size_bytes" validate:"min=0"`
	ReindexIntervalSeconds int   `json:"reindex_interval_seconds" validate:"min=0"`
	RespectGitignore       bool  `json:"respect_gitignore"`
}

// Clone returns a deep copy of p.
func (p Policy) Clone() Policy {
	clone := p
	clone.HomeRoots = cloneStrings(p.HomeRoots)
	clone.DocumentationRoots = cloneStrings(p.DocumentationRoots)
	clone.RepositoryRoots = cloneStrings(p.RepositoryRoots)
	clone.ExcludedPathFragments = cloneStrings(p.ExcludedPathFragments)
	clone.ExcludedGlobs = cloneStrings(p.ExcludedGlobs)
	return clone
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	return append(make([]string, 0, len(values)), values...)
}
