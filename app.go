package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
)

// App holds the services shared by the CLI and the TUI.
type App struct {
	cfg    Config
	logger *slog.Logger
	client *Client
	router *Router
	auth   *AuthService
	posts  *PostsService
}

func NewApp(cfg Config, db *sql.DB, clock Clock, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := newSealer(cfg.SessionKey)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	client, err := NewClient(cfg.APIURL, httpClient, logger)
	if err != nil {
		return nil, fmt.Errorf("creating api client: %w", err)
	}

	router := NewRouter()
	auth := NewAuthService(client, newSQLiteStore(db, s), router, clock, logger)
	router.Guard(auth)
	client.SetTokenSource(auth)

	return &App{
		cfg:    cfg,
		logger: logger,
		client: client,
		router: router,
		auth:   auth,
		posts:  NewPostsService(client, router, logger),
	}, nil
}
