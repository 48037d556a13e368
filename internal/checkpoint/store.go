// Package checkpoint persists crawl resume state as human-editable YAML
// files. A checkpoint older than the freshness window is treated as absent,
// so a stale file never resumes a crawl against outdated links.
package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rtparts/catalogd/internal/catalog"
	"github.com/rtparts/catalogd/internal/clock/system"
)

// Store reads and writes the two crawl checkpoints: visited model links and
// pending product links.
type Store struct {
	dir        string
	modelsFile string
	linksFile  string
	clock      catalog.Clock
	log        *zap.Logger
}

// NewStore builds a Store rooted at dir.
func NewStore(dir, modelsFile, linksFile string, clock catalog.Clock, log *zap.Logger) *Store {
	if modelsFile == "" {
		modelsFile = "models.yml"
	}
	if linksFile == "" {
		linksFile = "links.yml"
	}
	if clock == nil {
		clock = system.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		dir:        dir,
		modelsFile: modelsFile,
		linksFile:  linksFile,
		clock:      clock,
		log:        log,
	}
}

// LoadModels returns the checkpointed model links, or an empty slice when the
// file is missing or stale.
func (s *Store) LoadModels() ([]catalog.PendingLink, error) {
	return s.load(s.modelsFile)
}

// SaveModels atomically replaces the model checkpoint.
func (s *Store) SaveModels(links []catalog.PendingLink) error {
	return s.save(s.modelsFile, links)
}

// LoadPending returns the checkpointed pending product links, or an empty
// slice when the file is missing or stale.
func (s *Store) LoadPending() ([]catalog.PendingLink, error) {
	return s.load(s.linksFile)
}

// SavePending atomically replaces the pending-links checkpoint.
func (s *Store) SavePending(links []catalog.PendingLink) error {
	return s.save(s.linksFile, links)
}

// ClearPending removes the pending-links checkpoint. Missing file is not an
// error.
func (s *Store) ClearPending() error {
	return s.clear(s.linksFile)
}

// ClearModels removes the model checkpoint. Missing file is not an error.
func (s *Store) ClearModels() error {
	return s.clear(s.modelsFile)
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *Store) load(name string) ([]catalog.PendingLink, error) {
	path := s.path(name)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []catalog.PendingLink{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat checkpoint %s: %w", name, err)
	}

	if s.clock.Now().Sub(info.ModTime()) > catalog.FreshnessWindow {
		s.log.Info("checkpoint is stale, ignoring",
			zap.String("file", name),
			zap.Time("modified", info.ModTime()),
		)
		return []catalog.PendingLink{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", name, err)
	}

	var links []catalog.PendingLink
	if err := yaml.Unmarshal(raw, &links); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", name, err)
	}
	if links == nil {
		links = []catalog.PendingLink{}
	}
	return links, nil
}

// save writes to a temp file in the same directory and renames into place,
// so a crash mid-write never leaves a truncated checkpoint behind.
func (s *Store) save(name string, links []catalog.PendingLink) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	raw, err := yaml.Marshal(links)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp checkpoint: %w", err)
	}

	if err := os.Rename(tmpPath, s.path(name)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace checkpoint %s: %w", name, err)
	}

	s.log.Debug("checkpoint saved", zap.String("file", name), zap.Int("links", len(links)))
	return nil
}

func (s *Store) clear(name string) error {
	err := os.Remove(s.path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove checkpoint %s: %w", name, err)
	}
	return nil
}
