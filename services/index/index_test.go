package index

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/meghashyamc/homeindex/db"
	"github.com/meghashyamc/homeindex/db/snapshot"
	"github.com/stretchr/testify/require"
)

func filePaths(files []db.IndexedFile) []string {
	paths := make([]string, 0, len(files))
	for _, file := range files {
		paths = append(paths, file.Path)
	}
	return paths
}

func TestIndexingTextAndBinaryFiles(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{
		"notes.md":  "groceries: milk eggs bread milk coffee",
		"photo.png": strings.Repeat("\x00", 2<<20),
	})

	service := newTestService(t, newTestPolicy(root), nil)
	status := runIndexing(t, service.Service)
	assert.Equal(StateComplete, status.State)
	assert.Equal(1.0, status.Progress)
	assert.Equal(2, status.FilesIndexed)

	files := service.FilesByType(db.FileTypeDocumentation)
	assert.Len(files, 1)
	assert.Equal(filepath.Join(root, "notes.md"), files[0].Path)
	assert.NotEmpty(files[0].Keywords)
	assert.Equal("milk", files[0].Keywords[0])

	images := service.FilesByType(db.FileTypeImage)
	assert.Len(images, 1)
	assert.Equal("photo.png", images[0].Name)
	assert.Empty(images[0].Content)
	assert.Equal(int64(2<<20), images[0].Size)

	statistics := service.Statistics()
	assert.Equal(2, statistics.TotalFiles)
	assert.Equal(int64(2<<20)+int64(len("groceries: milk eggs bread milk coffee")), statistics.TotalSize)
	assert.False(statistics.LastIndexed.IsZero())
}

func TestIndexingExcludedFragment(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{
		"project/node_modules/lib/index.js": "module.exports = {}",
		"project/src/index.js":              "console.log('hello')",
	})

	policy := newTestPolicy(root)
	policy.ExcludedPathFragments = []string{"node_modules"}
	service := newTestService(t, policy, nil)
	runIndexing(t, service.Service)

	files := service.FilesByType(db.FileTypeCode)
	assert.Equal([]string{filepath.Join(root, "project/src/index.js")}, filePaths(files))
	for _, file := range service.Search("index", 0) {
		assert.NotContains(file.Path, "node_modules")
	}
}

func TestIndexingSearchPartialMatches(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{
		"Authentication.swift": "struct Session {}",
		"authorize.py":         "def check(): pass",
		"shopping.txt":         "bread",
	})

	service := newTestService(t, newTestPolicy(root), nil)
	runIndexing(t, service.Service)

	results := filePaths(service.Search("auth", 10))
	assert.ElementsMatch([]string{
		filepath.Join(root, "Authentication.swift"),
		filepath.Join(root, "authorize.py"),
	}, results)
	assert.Equal(results, filePaths(service.Search("auth", 10)))
}

func TestIndexingNestedRepositories(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{
		"outer/.git/config":         "[remote \"origin\"]\n\turl = https://example.com/outer.git\n",
		"outer/main.go":             "package main",
		"outer/build/generated.go":  "package build",
		"outer/lib/inner/.git/HEAD": "ref: refs/heads/main",
		"outer/lib/inner/inner.go":  "package inner",
	})

	policy := newTestPolicy()
	policy.IndexHome = false
	policy.IndexRepositories = true
	policy.RepositoryRoots = []string{root}
	service := newTestService(t, policy, nil)
	status := runIndexing(t, service.Service)
	assert.Equal(StateComplete, status.State)

	repositories := service.Repositories()
	assert.Len(repositories, 1)
	assert.Equal(filepath.Join(root, "outer"), repositories[0].Path)
	assert.Equal("https://example.com/outer.git", repositories[0].RemoteReference)

	assert.ElementsMatch([]string{
		filepath.Join(root, "outer/lib/inner/inner.go"),
		filepath.Join(root, "outer/main.go"),
	}, filePaths(service.FilesByType(db.FileTypeCode)))
}

func TestStartupWithoutSnapshot(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{"notes.md": "some notes here"})

	service := newTestService(t, newTestPolicy(root), nil)
	runIndexing(t, service.Service)
	assert.Equal(1, service.Statistics().TotalFiles)

	snapshotPath := filepath.Join(t.TempDir(), "index_snapshot.json")
	restarted := newTestServiceWithStores(t, newTestPolicy(root), snapshot.New(newTestLogger(), snapshotPath), service.kvDB, service.kvDB)
	assert.Equal(db.Statistics{}, restarted.Statistics())
	assert.Empty(restarted.Search("notes", 10))
	assert.Equal(StateIdle, restarted.Status().State)
}

func TestStartupRestoresSnapshot(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{
		"notes.md":       "some notes here",
		"code/main.go":   "package main",
		"pictures/a.png": "png",
	})

	service := newTestService(t, newTestPolicy(root), nil)
	runIndexing(t, service.Service)

	restarted := newTestServiceWithStores(t, newTestPolicy(root), service.snapshots, service.kvDB, service.kvDB)
	assert.Equal(service.Statistics(), restarted.Statistics())
	assert.Equal(service.Search("notes main", 10), restarted.Search("notes main", 10))
	assert.Equal(service.RecentFiles(0), restarted.RecentFiles(0))
}

func TestStartupWithCorruptSnapshot(t *testing.T) {
	assert := require.New(t)
	snapshotPath := filepath.Join(t.TempDir(), "index_snapshot.json")
	assert.NoError(os.WriteFile(snapshotPath, []byte(`{"version":1,"checksum":"00","payload":{`), 0600))

	service := newTestService(t, newTestPolicy(), nil)
	restarted := newTestServiceWithStores(t, newTestPolicy(), snapshot.New(newTestLogger(), snapshotPath), service.kvDB, service.kvDB)
	assert.Equal(db.Statistics{}, restarted.Statistics())
}

func TestReindexIsIdempotent(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{
		"notes.md":          "alpha beta gamma alpha",
		"src/server.go":     "package server",
		"docs/guide.txt":    "read the guide",
		"deep/a/b/c/d.yaml": "key: value",
	})

	service := newTestService(t, newTestPolicy(root), nil)
	runIndexing(t, service.Service)
	first, err := service.FilesMatching("**", 0)
	assert.NoError(err)
	assert.Len(first, 4)

	runIndexing(t, service.Service)
	second, err := service.FilesMatching("**", 0)
	assert.NoError(err)
	assert.Equal(first, second)
}

func TestStartIndexingWhileIndexing(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{"notes.md": "some notes here"})

	runs := newGatedRunStore(t, "indexing documentation")
	service := newTestService(t, newTestPolicy(root), runs)

	gate := runs.arm()
	runID, err := service.StartIndexing()
	assert.NoError(err)
	<-gate.reached

	status := service.Status()
	assert.Equal(StateIndexing, status.State)
	assert.Equal(runID, status.RunID)
	assert.Equal(progressDocumentationRoots, status.Progress)

	activeRunID, err := service.StartIndexing()
	assert.ErrorIs(err, ErrIndexingInProgress)
	assert.Equal(runID, activeRunID)

	gate.open()
	status = service.Wait(context.Background())
	assert.Equal(StateComplete, status.State)
	assert.Equal(runID, status.RunID)
	assert.Equal(1, service.Statistics().TotalFiles)

	persisted, err := service.RunStatus(runID)
	assert.NoError(err)
	assert.Equal(StateComplete, persisted.State)
	assert.Equal(1.0, persisted.Progress)
}

func TestCancelBeforeAnyRun(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{"notes.md": "some notes here"})

	runs := newGatedRunStore(t, "discovering repositories")
	service := newTestService(t, newTestPolicy(root), runs)

	gate := runs.arm()
	runID, err := service.StartIndexing()
	assert.NoError(err)
	<-gate.reached
	reached := service.Status().Progress
	assert.Equal(progressRepositories, reached)
	assert.True(service.Cancel())
	gate.open()

	status := service.Wait(context.Background())
	assert.Equal(runID, status.RunID)
	assert.Equal(StateIdle, status.State)
	assert.Equal(operationCancelled, status.CurrentOperation)
	assert.GreaterOrEqual(status.Progress, reached)
	assert.Equal(db.Statistics{}, service.Statistics())
	assert.False(service.Cancel())

	persisted, err := service.RunStatus(runID)
	assert.NoError(err)
	assert.Equal(StateIdle, persisted.State)
	assert.GreaterOrEqual(persisted.Progress, reached)

	_, err = service.snapshots.Load()
	assert.ErrorIs(err, snapshot.ErrNotFound)
}

func TestCancelKeepsPreviousIndex(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{"first.md": "first file"})

	runs := newGatedRunStore(t, "building search index")
	service := newTestService(t, newTestPolicy(root), runs)
	runIndexing(t, service.Service)
	before := service.Statistics()

	writeTestFiles(t, root, map[string]string{"second.md": "second file"})

	gate := runs.arm()
	_, err := service.StartIndexing()
	assert.NoError(err)
	<-gate.reached
	assert.True(service.Cancel())
	gate.open()

	status := service.Wait(context.Background())
	assert.Equal(StateComplete, status.State)
	assert.Equal(1.0, status.Progress)
	assert.Equal(operationCancelled, status.CurrentOperation)
	assert.Equal(before, service.Statistics())
	assert.Empty(service.Search("second", 10))

	restored, err := service.snapshots.Load()
	assert.NoError(err)
	assert.Equal(1, restored.Statistics.TotalFiles)

	status = runIndexing(t, service.Service)
	assert.Equal(StateComplete, status.State)
	assert.Equal(2, service.Statistics().TotalFiles)
}

func TestSnapshotFailureEndsInError(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{"notes.md": "some notes here"})

	service := newTestService(t, newTestPolicy(root), nil)
	failing := failingSnapshotStore{Store: snapshot.New(newTestLogger(), filepath.Join(t.TempDir(), "snapshot.json"))}
	broken := newTestServiceWithStores(t, newTestPolicy(root), failing, service.kvDB, service.kvDB)

	status := runIndexing(t, broken.Service)
	assert.Equal(StateError, status.State)
	assert.Contains(status.Error, "failed to save snapshot")
	assert.Equal(db.Statistics{}, broken.Statistics())
	assert.Empty(broken.Search("notes", 10))
}

func TestUnreadableRootEndsInError(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{"file.txt": "not a directory"})

	service := newTestService(t, newTestPolicy(filepath.Join(root, "file.txt")), nil)
	status := runIndexing(t, service.Service)
	assert.Equal(StateError, status.State)
	assert.Contains(status.Error, "file.txt")
}

func TestMissingRootIsSkipped(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{"notes.md": "some notes here"})

	service := newTestService(t, newTestPolicy(filepath.Join(root, "missing"), root), nil)
	status := runIndexing(t, service.Service)
	assert.Equal(StateComplete, status.State)
	assert.Equal(1, service.Statistics().TotalFiles)
}

func TestRunStatusUnknown(t *testing.T) {
	assert := require.New(t)
	service := newTestService(t, newTestPolicy(), nil)

	_, err := service.RunStatus("does-not-exist")
	assert.ErrorIs(err, ErrRunNotFound)
}

func TestScheduledReindex(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{"notes.md": "some notes here"})

	policy := newTestPolicy(root)
	policy.ReindexIntervalSeconds = 1
	service := newTestService(t, policy, nil)

	assert.Eventually(func() bool {
		return service.Statistics().TotalFiles == 1
	}, 10*time.Second, 50*time.Millisecond)
}

func TestScheduledReindexFollowsIntervalChanges(t *testing.T) {
	tests := []struct {
		name            string
		initialInterval int
	}{
		{name: "FromDisabled", initialInterval: 0},
		{name: "FromLongerInterval", initialInterval: 3600},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert := require.New(t)
			root := t.TempDir()
			writeTestFiles(t, root, map[string]string{"notes.md": "some notes here"})

			policy := newTestPolicy(root)
			policy.ReindexIntervalSeconds = test.initialInterval
			service := newTestService(t, policy, nil)
			assert.Equal(StateIdle, service.Status().State)

			policy.ReindexIntervalSeconds = 1
			service.policies.set(policy)

			assert.Eventually(func() bool {
				return service.Statistics().TotalFiles == 1
			}, 5*time.Second, 50*time.Millisecond)
		})
	}
}

func TestQueriesDuringRunUseCompletedIndex(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{"notes.md": "some notes here"})

	runs := newGatedRunStore(t, "saving snapshot")
	service := newTestService(t, newTestPolicy(root), runs)
	runIndexing(t, service.Service)
	before := service.Statistics()
	assert.Equal(1, before.TotalFiles)

	writeTestFiles(t, root, map[string]string{"zebra.md": "striped"})

	gate := runs.arm()
	_, err := service.StartIndexing()
	assert.NoError(err)
	<-gate.reached

	assert.Equal(StateIndexing, service.Status().State)
	assert.Empty(service.Search("zebra", 10))
	assert.Equal(before, service.Statistics())
	assert.Len(service.FilesByType(db.FileTypeDocumentation), 1)

	gate.open()
	status := service.Wait(context.Background())
	assert.Equal(StateComplete, status.State)
	assert.Equal([]string{filepath.Join(root, "zebra.md")}, filePaths(service.Search("zebra", 10)))
	assert.Equal(2, service.Statistics().TotalFiles)
}

func TestPolicyChangeDuringRunIsIgnored(t *testing.T) {
	assert := require.New(t)
	home := t.TempDir()
	docs := t.TempDir()
	other := t.TempDir()
	writeTestFiles(t, home, map[string]string{"notes.md": "home notes"})
	writeTestFiles(t, docs, map[string]string{"manual.md": "the manual"})
	writeTestFiles(t, other, map[string]string{"other.md": "other docs"})

	policy := newTestPolicy(home)
	policy.IndexDocumentation = true
	policy.DocumentationRoots = []string{docs}

	runs := newGatedRunStore(t, "indexing documentation")
	service := newTestService(t, policy, runs)

	gate := runs.arm()
	_, err := service.StartIndexing()
	assert.NoError(err)
	<-gate.reached

	changed := policy.Clone()
	changed.DocumentationRoots = []string{other}
	changed.ExcludedGlobs = []string{"**/*.md"}
	service.policies.set(changed)
	gate.open()

	status := service.Wait(context.Background())
	assert.Equal(StateComplete, status.State)
	files, err := service.FilesMatching("**", 0)
	assert.NoError(err)
	expected := []string{filepath.Join(docs, "manual.md"), filepath.Join(home, "notes.md")}
	sort.Strings(expected)
	assert.Equal(expected, filePaths(files))

	status = runIndexing(t, service.Service)
	assert.Equal(StateComplete, status.State)
	assert.Equal(0, service.Statistics().TotalFiles)
}

func TestRecentFilesAndMatching(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{
		"old.md":      "old",
		"middle.go":   "package middle",
		"newest.md":   "newest",
		"also_new.md": "also new",
	})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	modTimes := map[string]time.Time{
		"old.md":      base,
		"middle.go":   base.Add(time.Hour),
		"newest.md":   base.Add(2 * time.Hour),
		"also_new.md": base.Add(2 * time.Hour),
	}
	for name, modTime := range modTimes {
		assert.NoError(os.Chtimes(filepath.Join(root, name), modTime, modTime))
	}

	service := newTestService(t, newTestPolicy(root), nil)
	runIndexing(t, service.Service)

	assert.Equal([]string{
		filepath.Join(root, "also_new.md"),
		filepath.Join(root, "newest.md"),
		filepath.Join(root, "middle.go"),
		filepath.Join(root, "old.md"),
	}, filePaths(service.RecentFiles(0)))
	assert.Len(service.RecentFiles(2), 2)

	markdown, err := service.FilesMatching("*.md", 0)
	assert.NoError(err)
	assert.Len(markdown, 3)

	limited, err := service.FilesMatching("*.md", 1)
	assert.NoError(err)
	assert.Equal([]string{filepath.Join(root, "also_new.md")}, filePaths(limited))

	_, err = service.FilesMatching("[", 0)
	assert.Error(err)
}
