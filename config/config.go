package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/meghashyamc/homeindex/db"
	"github.com/spf13/viper"
)

const keyEnv = "ENV"
const envLocal = "local"

const (
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultMaxDepth         = 12
	defaultMaxFileSizeBytes = 10 * 1024 * 1024
)

type Config struct {
	config *viper.Viper
}

func Load(env string) (*Config, error) {

	if len(env) == 0 {
		if env = os.Getenv(keyEnv); len(env) == 0 {
			env = envLocal
		}
	}

	configPath, err := getConfigPath(env)

	viperConfig := viper.New()
	setDefaults(viperConfig)
	if err == nil {
		viperConfig.SetConfigFile(configPath)
		if err := viperConfig.ReadInConfig(); err != nil {
			slog.Warn(fmt.Sprintf("error reading config file, %s", err))
		}
	}
	viperConfig.AutomaticEnv()

	cfg := &Config{
		config: viperConfig,
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", defaultPort)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("database.kvdb_path", filepath.Join(".homeindex", "settings.db"))
	v.SetDefault("database.snapshot_path", filepath.Join(".homeindex", "index_snapshot.json"))
	v.SetDefault("indexing.index_home", true)
	v.SetDefault("indexing.index_documentation", true)
	v.SetDefault("indexing.index_repositories", true)
	v.SetDefault("indexing.home_roots", []string{"~"})
	v.SetDefault("indexing.max_depth", defaultMaxDepth)
	v.SetDefault("indexing.max_file_size_bytes", defaultMaxFileSizeBytes)
	v.SetDefault("indexing.excluded_path_fragments", []string{"node_modules", "Library/Caches", ".Trash"})
	v.SetDefault("indexing.respect_gitignore", true)
}

func (c *Config) GetPort() string {
	port := c.config.GetString("PORT")
	if len(port) == 0 {
		port = c.config.GetString("server.port")
	}

	return port
}

func (c *Config) GetLogLevel() string {
	level := c.config.GetString("LOG_LEVEL")
	if len(level) == 0 {
		level = c.config.GetString("log.level")
	}

	return level
}

func (c *Config) GetKVDBPath() string {
	kvdbPath := c.config.GetString("KVDB_PATH")
	if len(kvdbPath) == 0 {
		kvdbPath = c.config.GetString("database.kvdb_path")
	}

	return ExpandHome(kvdbPath)
}

func (c *Config) GetSnapshotPath() string {
	snapshotPath := c.config.GetString("SNAPSHOT_PATH")
	if len(snapshotPath) == 0 {
		snapshotPath = c.config.GetString("database.snapshot_path")
	}

	return ExpandHome(snapshotPath)
}

// GetDefaultPolicy returns the indexing policy used until the user changes it.
func (c *Config) GetDefaultPolicy() db.Policy {
	return db.Policy{
		IndexHome:              c.config.GetBool("indexing.index_home"),
		IndexDocumentation:     c.config.GetBool("indexing.index_documentation"),
		IndexRepositories:      c.config.GetBool("indexing.index_repositories"),
		HomeRoots:              ExpandHomeAll(c.config.GetStringSlice("indexing.home_roots")),
		DocumentationRoots:     ExpandHomeAll(c.config.GetStringSlice("indexing.documentation_roots")),
		RepositoryRoots:        ExpandHomeAll(c.config.GetStringSlice("indexing.repository_roots")),
		ExcludedPathFragments:  c.config.GetStringSlice("indexing.excluded_path_fragments"),
		ExcludedGlobs:          c.config.GetStringSlice("indexing.excluded_globs"),
		MaxDepth:               c.config.GetInt("indexing.max_depth"),
		MaxFileSizeBytes:       c.config.GetInt64("indexing.max_file_size_bytes"),
		ReindexIntervalSeconds: c.config.GetInt("indexing.reindex_interval_seconds"),
		RespectGitignore:       c.config.GetBool("indexing.respect_gitignore"),
	}
}

// ExpandHomeAll applies ExpandHome to every path.
func ExpandHomeAll(paths []string) []string {
	if paths == nil {
		return nil
	}
	expanded := make([]string, 0, len(paths))
	for _, path := range paths {
		expanded = append(expanded, ExpandHome(path))
	}
	return expanded
}

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("failed to resolve home directory", "path", path, "err", err.Error())
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func getProjectRoot() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}

	for {
		configDir := filepath.Join(currentDir, "config")
		if info, err := os.Stat(configDir); err == nil && info.IsDir() {
			return currentDir, nil
		}

		parent := filepath.Dir(currentDir)

		if parent == currentDir {
			break
		}

		currentDir = parent
	}

	return "", fmt.Errorf("could not find project root (directory containing 'config' folder)")
}

func getConfigPath(env string) (string, error) {
	configFile := fmt.Sprintf("config.%s.yaml", env)

	projectRoot, err := getProjectRoot()
	if err != nil {
		slog.Warn("failed to find project root with config directory, will use environment variables instead", "err", err.Error())
		return "", fmt.Errorf("failed to find project root: %w", err)
	}
	configPath := filepath.Join(projectRoot, "config", configFile)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		slog.Warn("failed to find config file within config directory, will use environment variables instead", "err", err.Error())
		return "", fmt.Errorf("config file does not exist: %s", configPath)
	}

	return configPath, nil
}
