package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"imgsniff/pkg/logger"
)

// FileName is the checkpoint kept inside a download directory
const FileName = ".imgsniff-checkpoint.json"

const currentVersion = 1

// Checkpoint maps source URLs to the file names they were saved under
type Checkpoint struct {
	Target     string            `json:"target"`
	Downloaded map[string]string `json:"downloaded"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Version    int               `json:"version"`

	mu sync.RWMutex
}

func New(target string) *Checkpoint {
	now := time.Now()
	return &Checkpoint{
		Target:     target,
		Downloaded: make(map[string]string),
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    currentVersion,
	}
}

// Lookup returns the file name recorded for url
func (c *Checkpoint) Lookup(url string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.Downloaded[url]
	return name, ok
}

// Record remembers that url was saved as name
func (c *Checkpoint) Record(url, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Downloaded[url] = name
}

func (c *Checkpoint) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Downloaded)
}

// Manager reads and writes the checkpoint of one directory
type Manager struct {
	path   string
	logger logger.Logger
}

func NewManager(dir string, log logger.Logger) *Manager {
	return &Manager{
		path:   filepath.Join(dir, FileName),
		logger: logger.OrGlobal(log),
	}
}

func (m *Manager) Path() string {
	return m.path
}

// Load reads the checkpoint, or starts a new one for target when the
// directory has none
func (m *Manager) Load(target string) (*Checkpoint, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(target), nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	cp := New(target)
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Downloaded == nil {
		cp.Downloaded = make(map[string]string)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"path":       m.path,
		"downloaded": len(cp.Downloaded),
		"updated_at": cp.UpdatedAt,
	})
	return cp, nil
}

// Save writes the checkpoint atomically
func (m *Manager) Save(cp *Checkpoint) error {
	cp.mu.Lock()
	cp.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(cp, "", "  ")
	cp.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tempPath := m.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	if err := os.Rename(tempPath, m.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"path":       m.path,
		"downloaded": cp.Count(),
	})
	return nil
}

func (m *Manager) Delete() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Saved returns the path url was saved to, if the checkpoint has it and the
// file is still on disk
func (m *Manager) Saved(cp *Checkpoint, url string) (string, bool) {
	name, ok := cp.Lookup(url)
	if !ok {
		return "", false
	}
	path := filepath.Join(filepath.Dir(m.path), name)
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		return "", false
	}
	return path, true
}
