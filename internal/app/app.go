// Package app assembles the application: configuration, logging, the
// REST client, the conversation store and the streaming session are
// constructed here and handed to the commands that need them.
package app

import (
	"fmt"
	"os"
	"time"

	"github.com/orderchat/orderchat/internal/admin"
	"github.com/orderchat/orderchat/internal/assembler"
	"github.com/orderchat/orderchat/internal/config"
	"github.com/orderchat/orderchat/internal/conversation"
	"github.com/orderchat/orderchat/internal/files"
	"github.com/orderchat/orderchat/internal/log"
	"github.com/orderchat/orderchat/internal/rest"
	"github.com/orderchat/orderchat/internal/stream"
)

// App is the application container. Components share one logger, one
// REST client and one conversation store.
type App struct {
	Config *config.Config
	Logger log.Logger

	REST      *rest.Client
	Assembler *assembler.Assembler
	Store     *conversation.Store
	Session   *stream.Session
	Browser   *files.Browser
	Directory *admin.Directory
	Logs      *admin.Logs
}

// New builds the application from an already validated configuration.
// The streaming session is constructed but not connected; the chat
// command connects when the screen opens.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}

	logger := log.New(log.Config{Level: cfg.SlogLevel(), JSON: cfg.LogJSON})

	restClient, err := rest.New(cfg.APIBaseURL, cfg.AuthKey, logger)
	if err != nil {
		return nil, fmt.Errorf("building rest client: %w", err)
	}

	asm := assembler.New(logger)
	store, err := conversation.New(restClient, asm, cfg.UserID, logger)
	if err != nil {
		return nil, fmt.Errorf("building conversation store: %w", err)
	}

	session, err := stream.New(cfg.StreamURL, cfg.AuthKey, store, stream.Options{
		ConnectTimeout:    time.Duration(cfg.ConnectTimeoutMs) * time.Millisecond,
		AutoReconnect:     cfg.AutoReconnect,
		ReconnectAttempts: cfg.ReconnectAttempts,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("building stream session: %w", err)
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		REST:      restClient,
		Assembler: asm,
		Store:     store,
		Session:   session,
		Browser:   files.NewBrowser(restClient, logger),
		Directory: admin.NewDirectory(restClient, logger),
		Logs:      admin.NewLogs(restClient, logger),
	}, nil
}

// Load reads configuration and builds the application. Missing or
// invalid configuration is the one fatal error class in the program.
func Load() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// Close tears down the streaming session. Safe to call on every exit
// path.
func (a *App) Close() {
	if a.Session != nil {
		a.Session.Close()
	}
	a.Logger.Debug("application closed")
}

// Fatal prints a startup error and exits. Kept here so commands share
// one failure format.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "orderchat: %v\n", err)
	os.Exit(1)
}
