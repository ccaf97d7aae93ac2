// Package infrastructure assembles the shared subsystems domain modules
// depend on: lifecycle coordination, logging, the database pool, and
// blob storage.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tiptoro/gateway/internal/config"
	"github.com/tiptoro/gateway/pkg/database"
	"github.com/tiptoro/gateway/pkg/lifecycle"
	"github.com/tiptoro/gateway/pkg/storage"
)

type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
}

// New constructs every subsystem without starting any of them; Start
// registers their lifecycle hooks.
func New(cfg *config.Config) (*Infrastructure, error) {
	logger := newLogger(cfg)

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	blobs, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	return &Infrastructure{
		Lifecycle: lifecycle.New(),
		Logger:    logger,
		Database:  db,
		Storage:   blobs,
	}, nil
}

func (i *Infrastructure) Start() error {
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	return nil
}

// newLogger emits JSON outside local development so log collectors get
// structured records, and text locally for readability.
func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.Env() == "local" {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}
