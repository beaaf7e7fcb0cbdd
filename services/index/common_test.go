// Common test helpers
package index

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/meghashyamc/homeindex/db"
	"github.com/meghashyamc/homeindex/db/kvdb"
	"github.com/meghashyamc/homeindex/db/snapshot"
	"github.com/meghashyamc/homeindex/logger"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestLogger() logger.Logger {
	opts := &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// writeTestFiles creates files under root from a map of relative path to content.
func writeTestFiles(t *testing.T, root string, files map[string]string) {
	for relPath, content := range files {
		fullPath := filepath.Join(root, relPath)
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0755), "could not create test sub-directory")
		require.NoError(t, os.WriteFile(fullPath, []byte(content), 0644), "could not write test file")
	}
}

// testPolicy is a PolicySource whose policy can be replaced mid-test.
type testPolicy struct {
	mu      sync.Mutex
	policy  db.Policy
	updated chan struct{}
}

func newTestPolicySource(policy db.Policy) *testPolicy {
	return &testPolicy{policy: policy.Clone(), updated: make(chan struct{})}
}

func (p *testPolicy) Policy() db.Policy {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.policy.Clone()
}

func (p *testPolicy) Updated() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.updated
}

func (p *testPolicy) set(policy db.Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.policy = policy.Clone()
	close(p.updated)
	p.updated = make(chan struct{})
}

func newTestPolicy(homeRoots ...string) db.Policy {
	return db.Policy{
		IndexHome:        true,
		HomeRoots:        homeRoots,
		MaxDepth:         8,
		MaxFileSizeBytes: 1 << 20,
	}
}

type testService struct {
	*Service
	policies  *testPolicy
	snapshots SnapshotStore
	kvDB      kvdb.DB
}

func newTestService(t *testing.T, policy db.Policy, runs RunStore) *testService {
	testLogger := newTestLogger()

	kvDB, err := kvdb.New(testLogger, filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err, "could not create kv database")
	t.Cleanup(func() { kvDB.Close() })

	if runs == nil {
		runs = kvDB
	}

	snapshots := snapshot.New(testLogger, filepath.Join(t.TempDir(), "index_snapshot.json"))

	return newTestServiceWithStores(t, policy, snapshots, runs, kvDB)
}

func newTestServiceWithStores(t *testing.T, policy db.Policy, snapshots SnapshotStore, runs RunStore, kvDB kvdb.DB) *testService {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	policies := newTestPolicySource(policy)
	service := New(ctx, newTestLogger(), policies, snapshots, runs, WithExtractionWorkers(4))
	return &testService{Service: service, policies: policies, snapshots: snapshots, kvDB: kvDB}
}

// runIndexing starts a run and waits for it to settle.
func runIndexing(t *testing.T, service *Service) Status {
	_, err := service.StartIndexing()
	require.NoError(t, err, "could not start indexing")
	return service.Wait(context.Background())
}

// gatedRunStore blocks a run when it persists a status with the given
// operation, once per armed gate.
type gatedRunStore struct {
	kvdb.DB
	operation string

	mu    sync.Mutex
	armed *gate
	gates []*gate
}

type gate struct {
	reached chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gate) open() {
	g.once.Do(func() { close(g.release) })
}

func newGatedRunStore(t *testing.T, operation string) *gatedRunStore {
	kvDB, err := kvdb.New(newTestLogger(), filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err, "could not create kv database")

	store := &gatedRunStore{DB: kvDB, operation: operation}
	t.Cleanup(func() {
		store.mu.Lock()
		for _, g := range store.gates {
			g.open()
		}
		store.mu.Unlock()
		kvDB.Close()
	})
	return store
}

func (s *gatedRunStore) arm() *gate {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := &gate{reached: make(chan struct{}), release: make(chan struct{})}
	s.armed = g
	s.gates = append(s.gates, g)
	return g
}

func (s *gatedRunStore) Set(bucket string, key string, value string) error {
	var status Status
	if err := json.Unmarshal([]byte(value), &status); err == nil && status.CurrentOperation == s.operation {
		s.mu.Lock()
		g := s.armed
		s.armed = nil
		s.mu.Unlock()

		if g != nil {
			close(g.reached)
			<-g.release
		}
	}
	return s.DB.Set(bucket, key, value)
}

type failingSnapshotStore struct {
	*snapshot.Store
}

func (f failingSnapshotStore) Save(*snapshot.Snapshot) error {
	return os.ErrPermission
}
