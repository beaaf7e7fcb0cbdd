package index

import (
	"bufio"
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	gitignore "github.com/denormal/go-gitignore"
	"github.com/google/uuid"
	"github.com/meghashyamc/homeindex/db"
	"github.com/meghashyamc/homeindex/logger"
	"github.com/pelletier/go-toml/v2"
)

const repositoryMarker = ".git"

// repositoryExcludedDirNames are never content-indexed inside a repository.
var repositoryExcludedDirNames = []string{
	repositoryMarker, "node_modules", "build", "dist", "target", ".build",
	"DerivedData", "Pods", "__pycache__", "vendor",
}

type repositoryDetector struct {
	logger  logger.Logger
	crawler *Crawler
}

func newRepositoryDetector(logger logger.Logger, crawler *Crawler) *repositoryDetector {
	return &repositoryDetector{logger: logger, crawler: crawler}
}

// FindRepositories walks the directories under each root and records every
// directory holding a repository marker, without descending into it. A root
// may itself be a repository. Paths are recorded at most once.
func (d *repositoryDetector) FindRepositories(ctx context.Context, roots []string, opts WalkOptions) ([]db.RepositoryRecord, error) {
	opts.Directories = true
	seen := make(map[string]struct{})
	var records []db.RepositoryRecord

	record := func(repositoryPath string) {
		if _, ok := seen[repositoryPath]; ok {
			return
		}
		seen[repositoryPath] = struct{}{}
		records = append(records, d.newRecord(repositoryPath))
	}

	for _, root := range roots {
		root = filepath.Clean(root)
		if isRepository(root) {
			record(root)
			continue
		}

		err := d.crawler.Walk(ctx, root, opts, func(entry Entry) error {
			if !isRepository(entry.Path) {
				return nil
			}
			record(entry.Path)
			return filepath.SkipDir
		})
		if err != nil {
			return nil, err
		}
	}

	return records, nil
}

func (d *repositoryDetector) newRecord(repositoryPath string) db.RepositoryRecord {
	remote := readRemoteReference(repositoryPath)
	d.logger.Debug("discovered repository", "path", repositoryPath, "remote", remote)

	return db.RepositoryRecord{
		ID:              uuid.NewSHA1(uuid.NameSpaceURL, []byte("repo://"+repositoryPath)).String(),
		Name:            filepath.Base(repositoryPath),
		Path:            repositoryPath,
		RemoteReference: remote,
		DiscoveredAt:    time.Now().UTC(),
	}
}

// contentWalkOptions derives the options for content-indexing one
// repository from the options used for ordinary roots.
func (d *repositoryDetector) contentWalkOptions(repositoryPath string, base WalkOptions, respectGitignore bool) WalkOptions {
	opts := base
	opts.Directories = false
	opts.ExcludedDirNames = append(append([]string(nil), base.ExcludedDirNames...), repositoryExcludedDirNames...)
	opts.ExcludedGlobs = append(append([]string(nil), base.ExcludedGlobs...), buildOutputGlobs(repositoryPath)...)

	if respectGitignore {
		opts.Ignore = loadGitignore(repositoryPath)
	}

	return opts
}

func isRepository(dirPath string) bool {
	info, err := os.Stat(filepath.Join(dirPath, repositoryMarker))
	return err == nil && info.IsDir()
}

// readRemoteReference returns the first "url = ..." value in the
// repository's git config, or "" when there is none.
func readRemoteReference(repositoryPath string) string {
	file, err := os.Open(filepath.Join(repositoryPath, repositoryMarker, "config"))
	if err != nil {
		return ""
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, found := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !found || strings.TrimSpace(key) != "url" {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}

	return ""
}

func loadGitignore(repositoryPath string) gitignore.GitIgnore {
	file, err := os.Open(filepath.Join(repositoryPath, ".gitignore"))
	if err != nil {
		return nil
	}
	defer file.Close()

	return gitignore.New(file, repositoryPath, nil)
}

type cargoConfig struct {
	Build struct {
		TargetDir string `toml:"target-dir"`
	} `toml:"build"`
}

type pyProject struct {
	Tool struct {
		Hatch struct {
			Build struct {
				Directory string `toml:"directory"`
			} `toml:"build"`
		} `toml:"hatch"`
	} `toml:"tool"`
}

// buildOutputGlobs reads build output directories declared in the
// repository's tool config files. Only relative directories are used.
func buildOutputGlobs(repositoryPath string) []string {
	var dirs []string

	var cargo cargoConfig
	if decodeTOML(filepath.Join(repositoryPath, ".cargo", "config.toml"), &cargo) {
		dirs = append(dirs, cargo.Build.TargetDir)
	}

	var project pyProject
	if decodeTOML(filepath.Join(repositoryPath, "pyproject.toml"), &project) {
		dirs = append(dirs, project.Tool.Hatch.Build.Directory)
	}

	var globs []string
	for _, dir := range dirs {
		dir = strings.TrimSuffix(filepath.ToSlash(dir), "/")
		if dir == "" || path.IsAbs(dir) || filepath.IsAbs(dir) {
			continue
		}
		dir = path.Clean(dir)
		if dir == "." || dir == ".." || strings.HasPrefix(dir, "../") {
			continue
		}
		globs = append(globs, dir, dir+"/**")
	}

	return globs
}

func decodeTOML(filePath string, target any) bool {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return false
	}

	return toml.Unmarshal(data, target) == nil
}
