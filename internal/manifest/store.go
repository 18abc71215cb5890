package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/storage"
)

// Store persists the manifest through guarded file operations.
type Store struct {
	fs     *storage.GuardedFS
	path   string
	logger *zerolog.Logger
}

// NewStore creates a store for the manifest in rootDir.
func NewStore(fs *storage.GuardedFS, rootDir string, logger *zerolog.Logger) *Store {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "manifest").Logger()
	return &Store{
		fs:     fs,
		path:   filepath.Join(rootDir, FileName),
		logger: &l,
	}
}

// Path returns the manifest file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted manifest, or nil when it is absent,
// unreadable, malformed or of another version. A nil manifest means
// "build everything" and is never an error.
func (s *Store) Load(ctx context.Context) *Manifest {
	exists, err := s.fs.Exists(ctx, s.path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Cannot check build manifest, starting fresh")
		return nil
	}
	if !exists {
		return nil
	}

	data, err := s.fs.ReadFile(ctx, s.path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Cannot read build manifest, starting fresh")
		return nil
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Malformed build manifest, starting fresh")
		return nil
	}

	if m.Version != Version {
		s.logger.Info().
			Int("found", m.Version).
			Int("expected", Version).
			Msg("Manifest version mismatch, starting fresh")
		return nil
	}
	if m.Records == nil {
		m.Records = make(map[string]Entry)
	}
	return &m
}

// Save writes m. Write failures are returned once the guarded write has
// exhausted its retries.
func (s *Store) Save(ctx context.Context, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := s.fs.WriteFile(ctx, s.path, data); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("Failed to save build manifest")
		return err
	}
	s.logger.Debug().Str("path", s.path).Int("records", len(m.Records)).Msg("Build manifest saved")
	return nil
}

// Clear deletes the manifest. A missing manifest is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.fs.Remove(ctx, s.path); err != nil {
		return err
	}
	s.logger.Info().Str("path", s.path).Msg("Build manifest cleared")
	return nil
}
