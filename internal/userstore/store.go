// Package userstore manages the per-user directory tree: config.json,
// and (eagerly, at user creation) the user's SQLite history database.
package userstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"replaytrainer/internal/domain"
	"replaytrainer/internal/store"
)

// Store manages user directories rooted at dir, each holding a
// config.json and a training_history.db.
type Store struct {
	dir string
	log *slog.Logger
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("userstore: creating root %s: %w", dir, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{dir: dir, log: log}, nil
}

func (s *Store) userDir(username string) string {
	return filepath.Join(s.dir, username)
}

func (s *Store) configPath(username string) string {
	return filepath.Join(s.userDir(username), "config.json")
}

func (s *Store) dbPath(username string) string {
	return filepath.Join(s.userDir(username), "training_history.db")
}

// List returns every known username, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("userstore: listing users: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether username has a user directory.
func (s *Store) Exists(username string) bool {
	_, err := os.Stat(s.userDir(username))
	return err == nil
}

// Create makes a new user directory with a default config.json, and
// eagerly opens (and so initializes the schema of) the user's history
// database to avoid first-session latency.
func (s *Store) Create(username string) error {
	if s.Exists(username) {
		return domain.ErrUserExists
	}
	if err := os.MkdirAll(s.userDir(username), 0o755); err != nil {
		return fmt.Errorf("userstore: creating directory for %s: %w", username, err)
	}

	cfg := domain.DefaultUserConfig()
	cfg.LastUpdated = time.Now()
	if err := s.writeConfig(username, cfg); err != nil {
		return err
	}

	db, err := store.NewSQLiteStore(s.dbPath(username), s.log)
	if err != nil {
		return fmt.Errorf("userstore: initializing history db for %s: %w", username, err)
	}
	return db.Close()
}

// Delete removes a user's entire directory tree.
func (s *Store) Delete(username string) error {
	if !s.Exists(username) {
		return domain.ErrUserNotFound
	}
	return os.RemoveAll(s.userDir(username))
}

func (s *Store) Config(username string) (domain.UserConfig, error) {
	if !s.Exists(username) {
		return domain.UserConfig{}, domain.ErrUserNotFound
	}
	data, err := os.ReadFile(s.configPath(username))
	if err != nil {
		return domain.UserConfig{}, fmt.Errorf("userstore: reading config for %s: %w", username, err)
	}
	var cfg domain.UserConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return domain.UserConfig{}, fmt.Errorf("userstore: parsing config for %s: %w", username, err)
	}
	return cfg, nil
}

// UpdateConfig merges fn's mutation into the user's config and stamps
// LastUpdated.
func (s *Store) UpdateConfig(username string, fn func(*domain.UserConfig)) (domain.UserConfig, error) {
	cfg, err := s.Config(username)
	if err != nil {
		return domain.UserConfig{}, err
	}
	fn(&cfg)
	cfg.LastUpdated = time.Now()
	if err := s.writeConfig(username, cfg); err != nil {
		return domain.UserConfig{}, err
	}
	return cfg, nil
}

func (s *Store) writeConfig(username string, cfg domain.UserConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.configPath(username), data, 0o644); err != nil {
		return fmt.Errorf("userstore: writing config for %s: %w", username, err)
	}
	return nil
}

// Statistics opens the user's history store and reads their aggregate
// statistics, defaulting to zeros if the user has never trained.
func (s *Store) Statistics(ctx context.Context, username string) (domain.UserStatistics, error) {
	if !s.Exists(username) {
		return domain.UserStatistics{}, domain.ErrUserNotFound
	}
	db, err := store.NewSQLiteStore(s.dbPath(username), s.log)
	if err != nil {
		return domain.UserStatistics{}, err
	}
	defer db.Close()
	return db.Statistics(ctx, username)
}

// History opens the user's history store for read/write access to their
// training sessions.
func (s *Store) History(username string) (*store.SQLiteStore, error) {
	if !s.Exists(username) {
		return nil, domain.ErrUserNotFound
	}
	return store.NewSQLiteStore(s.dbPath(username), s.log)
}
