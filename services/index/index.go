package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/meghashyamc/homeindex/db"
	"github.com/meghashyamc/homeindex/db/snapshot"
	"github.com/meghashyamc/homeindex/logger"
	"github.com/meghashyamc/homeindex/services/search"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRecentFilesLimit = 20

	maxGoRoutinesForFileProcessing = 50
)

var (
	ErrIndexingInProgress = errors.New("indexing already in progress")
	ErrRunNotFound        = errors.New("indexing run not found")
	ErrServiceStopped     = errors.New("index service stopped")
)

// PolicySource supplies the indexing policy captured at the start of a run.
// Updated returns a channel closed when the policy next changes, or nil
// when it never does.
type PolicySource interface {
	Policy() db.Policy
	Updated() <-chan struct{}
}

type SnapshotStore interface {
	Save(snapshot *snapshot.Snapshot) error
	Load() (*snapshot.Snapshot, error)
}

// generation is one fully built, immutable index state.
type generation struct {
	index        *search.Index
	repositories []db.RepositoryRecord
	statistics   db.Statistics
}

type Service struct {
	logger    logger.Logger
	policies  PolicySource
	snapshots SnapshotStore
	runs      RunStore
	crawler   *Crawler
	detector  *repositoryDetector
	workers   int

	ctx         context.Context
	buildIndexC chan indexRequest
	current     atomic.Pointer[generation]

	mu        sync.Mutex
	status    Status
	settled   Status
	cancelRun context.CancelFunc
	done      chan struct{}
}

type indexRequest struct {
	ctx    context.Context
	cancel context.CancelFunc
	runID  string
	policy db.Policy
}

type Option func(*Service)

// WithExtractionWorkers bounds how many files are read concurrently.
func WithExtractionWorkers(workers int) Option {
	return func(s *Service) {
		if workers > 0 {
			s.workers = workers
		}
	}
}

// New restores the last snapshot, if any, and starts the goroutine that
// runs indexing requests one at a time until ctx is done.
func New(ctx context.Context, logger logger.Logger, policies PolicySource, snapshots SnapshotStore, runs RunStore, opts ...Option) *Service {
	crawler := NewCrawler(logger)
	indexService := &Service{
		logger:      logger,
		policies:    policies,
		snapshots:   snapshots,
		runs:        runs,
		crawler:     crawler,
		detector:    newRepositoryDetector(logger, crawler),
		workers:     maxGoRoutinesForFileProcessing,
		ctx:         ctx,
		buildIndexC: make(chan indexRequest, 1),
		status:      Status{State: StateIdle, CurrentOperation: string(StateIdle)},
	}
	for _, opt := range opts {
		opt(indexService)
	}
	indexService.settled = indexService.status

	indexService.current.Store(indexService.loadSnapshot())

	go indexService.build(ctx)
	return indexService
}

func (s *Service) loadSnapshot() *generation {
	empty := &generation{index: search.Build(nil)}

	snap, err := s.snapshots.Load()
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			s.logger.Info("no snapshot found, starting with an empty index")
		} else {
			s.logger.Warn("failed to load snapshot, starting with an empty index", "err", err.Error())
		}
		return empty
	}

	files := make(map[string]db.IndexedFile, len(snap.Files))
	for _, file := range snap.Files {
		files[file.Path] = file
	}
	s.logger.Info("restored index from snapshot", "files", len(files), "repositories", len(snap.Repositories))

	return &generation{
		index:        search.Build(files),
		repositories: snap.Repositories,
		statistics:   snap.Statistics,
	}
}

// StartIndexing begins a run unless one is already active. A second call
// during a run starts nothing and returns the active run's ID along with
// ErrIndexingInProgress.
func (s *Service) StartIndexing() (string, error) {
	if s.ctx.Err() != nil {
		return "", ErrServiceStopped
	}

	s.mu.Lock()
	if s.status.State == StateIndexing {
		runID := s.status.RunID
		s.mu.Unlock()
		s.logger.Warn("request to index while indexing is already in progress", "run_id", runID)
		return runID, ErrIndexingInProgress
	}

	runCtx, cancel := context.WithCancel(s.ctx)
	req := indexRequest{
		ctx:    runCtx,
		cancel: cancel,
		runID:  uuid.New().String(),
		policy: s.policies.Policy(),
	}

	s.settled = s.status
	s.status = Status{
		RunID:            req.runID,
		State:            StateIndexing,
		Progress:         progressPrimaryRoots,
		CurrentOperation: "starting",
		StartedAt:        time.Now().UTC(),
	}
	s.cancelRun = cancel
	s.done = make(chan struct{})
	status := s.status
	s.mu.Unlock()

	s.setRunStatus(status)

	// At most one request is ever pending, so this never blocks.
	s.buildIndexC <- req
	s.logger.Info("indexing started", "run_id", req.runID)

	return req.runID, nil
}

// Cancel stops the active run between files. The previous index and
// snapshot are kept. It reports whether a run was active.
func (s *Service) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.State != StateIndexing || s.cancelRun == nil {
		return false
	}
	s.cancelRun()
	s.logger.Info("indexing cancellation requested", "run_id", s.status.RunID)

	return true
}

// Wait blocks until the active run, if any, has finished or ctx is done.
func (s *Service) Wait(ctx context.Context) Status {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	return s.Status()
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

func (s *Service) build(ctx context.Context) {
	for {
		var reindexC <-chan time.Time
		var timer *time.Timer
		policyUpdatedC := s.policies.Updated()
		if interval := s.policies.Policy().ReindexIntervalSeconds; interval > 0 {
			timer = time.NewTimer(time.Duration(interval) * time.Second)
			reindexC = timer.C
		}

		select {
		case req := <-s.buildIndexC:
			s.buildIndex(req)
		case <-policyUpdatedC:
			s.logger.Debug("indexing policy changed, rescheduling reindex")
		case <-reindexC:
			s.logger.Info("scheduled reindex")
			if _, err := s.StartIndexing(); err != nil && !errors.Is(err, ErrIndexingInProgress) {
				s.logger.Error("failed to start scheduled reindex", "err", err.Error())
			}
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			s.logger.Info("index service stopped", "reason", ctx.Err())
			return
		}

		if timer != nil {
			timer.Stop()
		}
	}
}

func (s *Service) buildIndex(req indexRequest) {
	defer req.cancel()

	next, err := s.runPipeline(req.ctx, req.runID, req.policy)
	switch {
	case err == nil:
		s.finish(req.runID, func(status *Status) {
			status.State = StateComplete
			status.Progress = progressComplete
			status.CurrentOperation = string(StateComplete)
			status.FilesIndexed = next.statistics.TotalFiles
		})
		s.logger.Info("indexing complete", "run_id", req.runID, "files", next.statistics.TotalFiles)

	case errors.Is(err, context.Canceled):
		s.finish(req.runID, func(status *Status) {
			status.State = s.settled.State
			status.Progress = max(status.Progress, s.settled.Progress)
			status.CurrentOperation = operationCancelled
		})
		s.logger.Info("indexing cancelled", "run_id", req.runID)

	default:
		s.finish(req.runID, func(status *Status) {
			status.State = StateError
			status.CurrentOperation = operationFailed
			status.Error = err.Error()
		})
		s.logger.Error("failed to create index", "run_id", req.runID, "err", err.Error())
	}
}

// runPipeline crawls every enabled root category in order, builds the
// search index, writes the snapshot and only then publishes the new
// generation.
func (s *Service) runPipeline(ctx context.Context, runID string, policy db.Policy) (*generation, error) {
	files := make(map[string]db.IndexedFile)
	walkOpts := WalkOptions{
		MaxDepth:              policy.MaxDepth,
		ExcludedPathFragments: policy.ExcludedPathFragments,
		ExcludedGlobs:         policy.ExcludedGlobs,
	}

	if policy.IndexHome {
		if err := s.indexRoots(ctx, runID, policy.HomeRoots, walkOpts, policy.MaxFileSizeBytes, files, "home", progressPrimaryRoots, progressDocumentationRoots); err != nil {
			return nil, err
		}
	}
	s.checkpoint(runID, progressDocumentationRoots, "indexing documentation")

	if policy.IndexDocumentation {
		if err := s.indexRoots(ctx, runID, policy.DocumentationRoots, walkOpts, policy.MaxFileSizeBytes, files, "documentation", progressDocumentationRoots, progressRepositories); err != nil {
			return nil, err
		}
	}
	s.checkpoint(runID, progressRepositories, "discovering repositories")

	var repositories []db.RepositoryRecord
	if policy.IndexRepositories {
		var err error
		repositories, err = s.indexRepositories(ctx, runID, policy, walkOpts, files)
		if err != nil {
			return nil, err
		}
	}
	s.checkpoint(runID, progressBuild, "building search index")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	next := &generation{
		index:        search.Build(files),
		repositories: repositories,
		statistics:   computeStatistics(files),
	}
	s.checkpoint(runID, progressPersist, "saving snapshot")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err := s.snapshots.Save(&snapshot.Snapshot{
		Files:        next.index.Files(),
		Repositories: next.repositories,
		Statistics:   next.statistics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	s.current.Store(next)

	return next, nil
}

func (s *Service) indexRoots(ctx context.Context, runID string, roots []string, opts WalkOptions, maxFileSizeBytes int64, files map[string]db.IndexedFile, category string, initial float64, final float64) error {
	for i, root := range roots {
		s.setProgress(runID, getProgress(i, len(roots), initial, final), fmt.Sprintf("indexing %s root %s", category, root))
		if err := s.indexRoot(ctx, root, opts, maxFileSizeBytes, files); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) indexRepositories(ctx context.Context, runID string, policy db.Policy, walkOpts WalkOptions, files map[string]db.IndexedFile) ([]db.RepositoryRecord, error) {
	repositories, err := s.detector.FindRepositories(ctx, policy.RepositoryRoots, walkOpts)
	if err != nil {
		return nil, err
	}
	s.logger.Info("discovered repositories", "run_id", runID, "count", len(repositories))

	for i, repository := range repositories {
		s.setProgress(runID, getProgress(i, len(repositories), progressRepositories, progressBuild), "indexing repository "+repository.Name)

		opts := s.detector.contentWalkOptions(repository.Path, walkOpts, policy.RespectGitignore)
		if err := s.indexRoot(ctx, repository.Path, opts, policy.MaxFileSizeBytes, files); err != nil {
			return nil, err
		}
	}

	return repositories, nil
}

// indexRoot walks root and extracts the files found concurrently. Records
// are merged into files in walk order, replacing earlier ones by path.
func (s *Service) indexRoot(ctx context.Context, root string, opts WalkOptions, maxFileSizeBytes int64, files map[string]db.IndexedFile) error {
	var entries []Entry
	err := s.crawler.Walk(ctx, root, opts, func(entry Entry) error {
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("discovered files", "root", root, "num_of_files", len(entries))

	indexed := make([]db.IndexedFile, len(entries))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)

	for i, entry := range entries {
		i, entry := i, entry
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}

			file, err := newIndexedFile(entry, maxFileSizeBytes)
			if err != nil {
				s.logger.Warn("indexing file without content", "path", entry.Path, "err", err.Error())
			}
			indexed[i] = file
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	for _, file := range indexed {
		files[file.Path] = file
	}

	return nil
}

func computeStatistics(files map[string]db.IndexedFile) db.Statistics {
	statistics := db.Statistics{
		TotalFiles:  len(files),
		LastIndexed: time.Now().UTC(),
	}
	for _, file := range files {
		statistics.TotalSize += file.Size
	}

	return statistics
}

// setProgress never moves progress backwards.
func (s *Service) setProgress(runID string, progress float64, operation string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.RunID == runID {
		s.status.Progress = max(s.status.Progress, progress)
		s.status.CurrentOperation = operation
	}

	return s.status
}

// checkpoint marks a phase boundary and persists the run status.
func (s *Service) checkpoint(runID string, progress float64, operation string) {
	s.setRunStatus(s.setProgress(runID, progress, operation))
}

func (s *Service) finish(runID string, update func(status *Status)) {
	s.mu.Lock()
	if s.status.RunID != runID {
		s.mu.Unlock()
		return
	}

	update(&s.status)
	s.status.FinishedAt = time.Now().UTC()
	s.cancelRun = nil
	status := s.status
	close(s.done)
	s.mu.Unlock()

	s.setRunStatus(status)
}

// Search answers query against the last completed index.
func (s *Service) Search(query string, limit int) []db.IndexedFile {
	return s.current.Load().index.Search(query, limit)
}

func (s *Service) FilesByType(fileType db.FileType) []db.IndexedFile {
	var files []db.IndexedFile
	for _, file := range s.current.Load().index.Files() {
		if file.Type == fileType {
			files = append(files, file)
		}
	}

	return files
}

// RecentFiles returns up to limit files, most recently modified first.
func (s *Service) RecentFiles(limit int) []db.IndexedFile {
	if limit <= 0 {
		limit = DefaultRecentFilesLimit
	}

	files := s.current.Load().index.Files()
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})

	if len(files) > limit {
		files = files[:limit]
	}

	return files
}

// FilesMatching returns files whose path matches the doublestar pattern.
// A pattern without a slash is matched against the file name. A limit of
// zero or less returns every match.
func (s *Service) FilesMatching(pattern string, limit int) ([]db.IndexedFile, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob pattern %q", pattern)
	}
	matchName := !strings.Contains(pattern, "/")

	var files []db.IndexedFile
	for _, file := range s.current.Load().index.Files() {
		target := filepath.ToSlash(file.Path)
		if matchName {
			target = file.Name
		}
		if matched, _ := doublestar.Match(pattern, target); !matched {
			continue
		}

		files = append(files, file)
		if limit > 0 && len(files) == limit {
			break
		}
	}

	return files, nil
}

func (s *Service) Repositories() []db.RepositoryRecord {
	return append([]db.RepositoryRecord(nil), s.current.Load().repositories...)
}

func (s *Service) Statistics() db.Statistics {
	return s.current.Load().statistics
}
