// Package snapshot persists the complete index state to a single JSON file.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/meghashyamc/homeindex/db"
	"github.com/meghashyamc/homeindex/logger"
)

const formatVersion = 1

var (
	ErrNotFound = errors.New("snapshot not found")
	ErrCorrupt  = errors.New("snapshot is corrupt")
)

type Snapshot struct {
	Files        []db.IndexedFile      `json:"files"`
	Repositories []db.RepositoryRecord `json:"repositories"`
	Statistics   db.Statistics         `json:"statistics"`
}

// envelope is the on-disk layout. Checksum is the xxhash64 of Payload.
type envelope struct {
	Version   int             `json:"version"`
	Checksum  string          `json:"checksum"`
	WrittenAt time.Time       `json:"written_at"`
	Payload   json.RawMessage `json:"payload"`
}

type Store struct {
	path   string
	logger logger.Logger
}

func New(logger logger.Logger, path string) *Store {
	return &Store{path: path, logger: logger}
}

func (s *Store) Path() string {
	return s.path
}

// Save replaces the snapshot file. Readers see either the previous file or
// the new one, never a partial write.
func (s *Store) Save(snapshot *Snapshot) error {
	files := append([]db.IndexedFile(nil), snapshot.Files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	payload, err := json.Marshal(Snapshot{
		Files:        files,
		Repositories: snapshot.Repositories,
		Statistics:   snapshot.Statistics,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot payload: %w", err)
	}

	data, err := json.Marshal(envelope{
		Version:   formatVersion,
		Checksum:  checksum(payload),
		WrittenAt: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := writeFileAtomic(s.path, data, 0600); err != nil {
		s.logger.Error("failed to write snapshot", "path", s.path, "err", err.Error())
		return err
	}

	s.logger.Info("saved snapshot", "path", s.path, "files", len(files), "bytes", len(data))
	return nil
}

// Load reads the snapshot file. It returns ErrNotFound when there is no
// file and ErrCorrupt when the file cannot be trusted.
func (s *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, err.Error())
	}
	if env.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, env.Version)
	}
	if checksum(env.Payload) != env.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(env.Payload, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, err.Error())
	}

	seen := make(map[string]struct{}, len(snapshot.Files))
	for _, file := range snapshot.Files {
		if _, ok := seen[file.Path]; ok {
			return nil, fmt.Errorf("%w: duplicate path %s", ErrCorrupt, file.Path)
		}
		seen[file.Path] = struct{}{}
	}

	return &snapshot, nil
}

func checksum(payload []byte) string {
	return strconv.FormatUint(xxhash.Sum64(payload), 16)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := f.Name()

	success := false
	defer func() {
		if !success {
			f.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, perm); err != nil {
		return fmt.Errorf("failed to set snapshot permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
