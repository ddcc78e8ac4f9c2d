// ABOUTME: Opens the store, profile tree and user service from configuration
// ABOUTME: Shared by the long-running server and the one-shot CLI commands

package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/LyceenAiro/CelesteNet-UserTool/internal/auth"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/config"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/profile"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/store"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/users"
)

// Services bundles the user lifecycle layer and the store it owns.
type Services struct {
	Store    *store.SQLiteStore
	Profiles *profile.Store
	Users    *users.Service
}

// dbPath returns the database path, letting CNUT_DB_PATH override the configured location.
func dbPath(cfg *config.Config) string {
	if envPath := os.Getenv("CNUT_DB_PATH"); envPath != "" {
		return envPath
	}
	return cfg.DatabasePath()
}

// OpenServices opens the database and builds the user service. Close releases the database.
func OpenServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	profiles := profile.NewStore(cfg.Storage.UserDataPath)

	db, err := store.Open(cfg.Storage.Driver, dbPath(cfg))
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	s, err := store.NewSQLiteStore(ctx, db, store.Options{
		Driver:      cfg.Storage.Driver,
		Real:        cfg.Storage.Real,
		Module:      cfg.Storage.Module,
		Version:     cfg.Storage.Version,
		Initializer: profiles.Create,
		Logger:      logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	svc := users.New(s, profiles, auth.NewCredentials(s, logger), users.Options{
		SuperAdmins:       cfg.Auth.SuperAdmin,
		RemoveSuperAdmins: cfg.Auth.RemoveSuperAdmin,
		DisplayZone:       users.DisplayZone(cfg.Display.UTCOffsetHours),
		Logger:            logger,
	})
	return &Services{Store: s, Profiles: profiles, Users: svc}, nil
}

// Close closes the database.
func (s *Services) Close() error {
	return s.Store.Close()
}
