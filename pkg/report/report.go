// Package report writes and reads the JSON result list of a sniff session.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"imgsniff/pkg/models"
)

// Write encodes records as an indented JSON array. URLs are written
// verbatim, without HTML escaping. A nil slice is written as [].
func Write(w io.Writer, records []models.Record) error {
	if records == nil {
		records = []models.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}

// Save writes records to path atomically, creating parent directories
func Save(path string, records []models.Record) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create results directory: %w", err)
		}
	}

	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary results file: %w", err)
	}

	buf := bufio.NewWriter(file)
	if err := Write(buf, records); err != nil {
		file.Close()
		os.Remove(tempPath)
		return err
	}
	if err := buf.Flush(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write results file: %w", err)
	}

	// Ensure data is written to disk
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync results file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close results file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace results file: %w", err)
	}
	return nil
}

// Load reads a file written by Save
func Load(path string) ([]models.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file: %w", err)
	}
	defer file.Close()

	var records []models.Record
	if err := json.NewDecoder(file).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	if records == nil {
		records = []models.Record{}
	}
	return records, nil
}
