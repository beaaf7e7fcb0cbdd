package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/meghashyamc/homeindex/db"
	"github.com/meghashyamc/homeindex/db/kvdb"
	"github.com/meghashyamc/homeindex/db/snapshot"
	"github.com/meghashyamc/homeindex/logger"
	"github.com/meghashyamc/homeindex/services/index"
	"github.com/meghashyamc/homeindex/services/search"
	"github.com/meghashyamc/homeindex/services/settings"
	"github.com/urfave/cli/v2"
)

func indexCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logger.New(cfg.GetLogLevel())

	kvDB, err := kvdb.New(log, cfg.GetKVDBPath())
	if err != nil {
		return err
	}
	defer kvDB.Close()

	policies, err := settings.New(log, kvDB, cfg.GetDefaultPolicy())
	if err != nil {
		return err
	}

	engine := index.New(c.Context, log, policies, snapshot.New(log, cfg.GetSnapshotPath()), kvDB)
	if _, err := engine.StartIndexing(); err != nil {
		return err
	}

	status := engine.Wait(c.Context)
	if c.Context.Err() != nil {
		return errors.New("indexing interrupted")
	}
	if status.State == index.StateError {
		return fmt.Errorf("indexing failed: %s", status.Error)
	}

	return printJSON(engine.Statistics())
}

func searchCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("usage: homeindex search <query>")
	}
	query := strings.Join(c.Args().Slice(), " ")

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logger.New(cfg.GetLogLevel())

	snap, err := snapshot.New(log, cfg.GetSnapshotPath()).Load()
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			return errors.New("no index found, run `homeindex index` first")
		}
		return err
	}

	files := make(map[string]db.IndexedFile, len(snap.Files))
	for _, file := range snap.Files {
		files[file.Path] = file
	}

	results := search.Build(files).Search(query, c.Int("limit"))
	for i := range results {
		results[i].Content = ""
	}
	if results == nil {
		results = []db.IndexedFile{}
	}

	return printJSON(results)
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
