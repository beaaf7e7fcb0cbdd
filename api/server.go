package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/homeindex/config"
	"github.com/meghashyamc/homeindex/db/kvdb"
	"github.com/meghashyamc/homeindex/db/snapshot"
	"github.com/meghashyamc/homeindex/logger"
	"github.com/meghashyamc/homeindex/services/index"
	"github.com/meghashyamc/homeindex/services/settings"
	"github.com/meghashyamc/homeindex/validation"
)

type server struct {
	config     *config.Config
	router     *gin.Engine
	httpServer *http.Server
	kvdb       kvdb.DB
	settings   *settings.Store
	engine     *index.Service
	validator  *validation.Validator
	logger     logger.Logger
	cancel     context.CancelFunc
}

// Run serves the HTTP API until ctx is done or the process is interrupted.
func Run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)

	defer cancel()

	s := &server{
		config: cfg,
		logger: logger.New(cfg.GetLogLevel()),
		cancel: cancel,
	}
	if err := s.setupDependencies(ctx); err != nil {
		return err
	}
	s.setupRouter()
	s.setupHTTPServer()
	s.setupGracefulShutdown(ctx)

	return nil
}

func (s *server) setupDependencies(ctx context.Context) error {
	var err error
	s.kvdb, err = kvdb.New(s.logger, s.config.GetKVDBPath())
	if err != nil {
		s.logger.Error("error creating kvDB", "err", err.Error())
		return err
	}
	s.settings, err = settings.New(s.logger, s.kvdb, s.config.GetDefaultPolicy())
	if err != nil {
		s.logger.Error("error loading settings", "err", err.Error())
		s.kvdb.Close()
		return err
	}
	s.validator, err = validation.New(s.logger)
	if err != nil {
		s.logger.Error("error creating validator", "err", err.Error())
		s.kvdb.Close()
		return err
	}

	snapshots := snapshot.New(s.logger, s.config.GetSnapshotPath())
	s.engine = index.New(ctx, s.logger, s.settings, snapshots, s.kvdb)

	return nil

}

func (s *server) setupRouter() {
	router := newRouter()

	router.Use(loggingMiddleware(s.logger))

	setupRoutes(router, s.logger, s.engine, s.settings, s.validator)

	s.router = router
}

func (s *server) setupHTTPServer() {

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.config.GetPort()),
		Handler:           s.router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpServer
	go func() {
		s.logger.Info("starting http server", "addr", httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped unexpectedly", "err", err.Error())
			s.cancel()
		}
	}()
}

func (s *server) setupGracefulShutdown(ctx context.Context) {

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		s.logger.Info("starting to shut down http server")
		shutdownCtx := context.Background()
		shutdownCtx, cancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer cancel()
		defer s.kvdb.Close()

		s.engine.Wait(shutdownCtx)
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error shutting down http server", "err", err)
			return
		}
		s.logger.Info("shut down http server successfully")
	}()

	wg.Wait()
}
