// Package settings owns the indexing policy. Defaults come from the
// application config and user changes are persisted in the kvdb settings
// bucket, one flat key per field.
package settings

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/meghashyamc/homeindex/config"
	"github.com/meghashyamc/homeindex/db"
	"github.com/meghashyamc/homeindex/db/kvdb"
	"github.com/meghashyamc/homeindex/logger"
)

const (
	keyIndexHome              = "index_home"
	keyIndexDocumentation     = "index_documentation"
	keyIndexRepositories      = "index_repositories"
	keyHomeRoots              = "home_roots"
	keyDocumentationRoots     = "documentation_roots"
	keyRepositoryRoots        = "repository_roots"
	keyExcludedPathFragments  = "excluded_path_fragments"
	keyExcludedGlobs          = "excluded_globs"
	keyMaxDepth               = "max_depth"
	keyMaxFileSizeBytes       = "max_file_size_bytes"
	keyReindexIntervalSeconds = "reindex_interval_seconds"
	keyRespectGitignore       = "respect_gitignore"
)

type Store struct {
	logger logger.Logger
	db     kvdb.DB

	mu      sync.RWMutex
	policy  db.Policy
	updated chan struct{}
}

// New builds a Store whose starting policy is defaults overlaid with
// whatever was persisted earlier.
func New(logger logger.Logger, kvDB kvdb.DB, defaults db.Policy) (*Store, error) {
	stored, err := kvDB.GetAll(kvdb.SettingsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored settings: %w", err)
	}

	store := &Store{
		logger:  logger,
		db:      kvDB,
		policy:  defaults.Clone(),
		updated: make(chan struct{}),
	}
	store.overlay(stored)

	return store, nil
}

// Policy returns a copy of the current policy.
func (s *Store) Policy() db.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.policy.Clone()
}

// Updated returns a channel that is closed on the next successful Update.
func (s *Store) Updated() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.updated
}

// Update persists every field of policy in one write and then makes it
// current. Roots starting with "~" are expanded first.
func (s *Store) Update(policy db.Policy) error {
	policy = policy.Clone()
	policy.HomeRoots = config.ExpandHomeAll(policy.HomeRoots)
	policy.DocumentationRoots = config.ExpandHomeAll(policy.DocumentationRoots)
	policy.RepositoryRoots = config.ExpandHomeAll(policy.RepositoryRoots)

	values, err := encode(policy)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.SetMany(kvdb.SettingsBucket, values); err != nil {
		s.logger.Error("failed to persist settings", "err", err.Error())
		return fmt.Errorf("failed to persist settings: %w", err)
	}
	s.policy = policy.Clone()
	close(s.updated)
	s.updated = make(chan struct{})
	s.logger.Info("indexing policy updated")

	return nil
}

func (s *Store) overlay(stored map[string]string) {
	p := &s.policy

	s.overlayBool(stored, keyIndexHome, &p.IndexHome)
	s.overlayBool(stored, keyIndexDocumentation, &p.IndexDocumentation)
	s.overlayBool(stored, keyIndexRepositories, &p.IndexRepositories)
	s.overlayBool(stored, keyRespectGitignore, &p.RespectGitignore)

	s.overlayList(stored, keyHomeRoots, &p.HomeRoots)
	s.overlayList(stored, keyDocumentationRoots, &p.DocumentationRoots)
	s.overlayList(stored, keyRepositoryRoots, &p.RepositoryRoots)
	s.overlayList(stored, keyExcludedPathFragments, &p.ExcludedPathFragments)
	s.overlayList(stored, keyExcludedGlobs, &p.ExcludedGlobs)

	if value, ok := stored[keyMaxDepth]; ok {
		if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
			p.MaxDepth = parsed
		} else {
			s.warnInvalid(keyMaxDepth, value)
		}
	}
	if value, ok := stored[keyMaxFileSizeBytes]; ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed >= 0 {
			p.MaxFileSizeBytes = parsed
		} else {
			s.warnInvalid(keyMaxFileSizeBytes, value)
		}
	}
	if value, ok := stored[keyReindexIntervalSeconds]; ok {
		if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
			p.ReindexIntervalSeconds = parsed
		} else {
			s.warnInvalid(keyReindexIntervalSeconds, value)
		}
	}
}

func (s *Store) overlayBool(stored map[string]string, key string, target *bool) {
	value, ok := stored[key]
	if !ok {
		return
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		s.warnInvalid(key, value)
		return
	}
	*target = parsed
}

func (s *Store) overlayList(stored map[string]string, key string, target *[]string) {
	value, ok := stored[key]
	if !ok {
		return
	}
	var parsed []string
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		s.warnInvalid(key, value)
		return
	}
	*target = parsed
}

func (s *Store) warnInvalid(key string, value string) {
	s.logger.Warn("ignoring unparseable stored setting, using default", "key", key, "value", value)
}

func encode(p db.Policy) (map[string]string, error) {
	values := map[string]string{
		keyIndexHome:              strconv.FormatBool(p.IndexHome),
		keyIndexDocumentation:     strconv.FormatBool(p.IndexDocumentation),
		keyIndexRepositories:      strconv.FormatBool(p.IndexRepositories),
		keyRespectGitignore:       strconv.FormatBool(p.RespectGitignore),
		keyMaxDepth:               strconv.Itoa(p.MaxDepth),
		keyMaxFileSizeBytes:       strconv.FormatInt(p.MaxFileSizeBytes, 10),
		keyReindexIntervalSeconds: strconv.Itoa(p.ReindexIntervalSeconds),
	}

	lists := map[string][]string{
		keyHomeRoots:             p.HomeRoots,
		keyDocumentationRoots:    p.DocumentationRoots,
		keyRepositoryRoots:       p.RepositoryRoots,
		keyExcludedPathFragments: p.ExcludedPathFragments,
		keyExcludedGlobs:         p.ExcludedGlobs,
	}
	for key, list := range lists {
		if list == nil {
			list = []string{}
		}
		encoded, err := json.Marshal(list)
		if err != nil {
			return nil, fmt.Errorf("failed to encode setting %s: %w", key, err)
		}
		values[key] = string(encoded)
	}

	return values, nil
}
