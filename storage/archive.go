// Package storage persists finished run reports to disk.
//
// The archive is a single JSON file written atomically (temp file + rename)
// so it is never observed in a partially-written state.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"trendcast/report"
)

const schemaVersion = "1.0"

// ErrNotFound indicates the requested archived report does not exist.
var ErrNotFound = errors.New("archived report not found")

// ArchivedReport is one stored report with archive bookkeeping.
type ArchivedReport struct {
	ID      string        `json:"id"`
	SavedAt time.Time     `json:"saved_at"`
	Report  report.Report `json:"report"`
}

// archiveData is the top-level JSON structure.
type archiveData struct {
	Version   string           `json:"version"`
	UpdatedAt time.Time        `json:"updated_at"`
	Reports   []ArchivedReport `json:"reports"`
}

// Archive stores run reports in a single JSON file with bounded history.
type Archive struct {
	path       string
	maxHistory int
	mu         sync.Mutex
}

// NewArchive creates an archive at the given path, keeping at most
// maxHistory reports (oldest dropped first). maxHistory <= 0 keeps 50.
func NewArchive(path string, maxHistory int) *Archive {
	if maxHistory <= 0 {
		maxHistory = 50
	}
	return &Archive{path: path, maxHistory: maxHistory}
}

// Save appends the report to the archive and trims history.
// Returns the assigned archive ID.
func (a *Archive) Save(rep report.Report) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := a.load()
	if err != nil {
		return "", err
	}

	entry := ArchivedReport{
		ID:      uuid.NewString(),
		SavedAt: time.Now().UTC(),
		Report:  rep,
	}
	data.Reports = append(data.Reports, entry)
	if len(data.Reports) > a.maxHistory {
		data.Reports = data.Reports[len(data.Reports)-a.maxHistory:]
	}
	data.UpdatedAt = entry.SavedAt

	if err := a.write(data); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// List returns all archived reports, oldest first.
func (a *Archive) List() ([]ArchivedReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := a.load()
	if err != nil {
		return nil, err
	}
	return data.Reports, nil
}

// Get returns one archived report by ID.
func (a *Archive) Get(id string) (*ArchivedReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := a.load()
	if err != nil {
		return nil, err
	}
	for i := range data.Reports {
		if data.Reports[i].ID == id {
			return &data.Reports[i], nil
		}
	}
	return nil, ErrNotFound
}

// Latest returns the most recently saved report.
func (a *Archive) Latest() (*ArchivedReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := a.load()
	if err != nil {
		return nil, err
	}
	if len(data.Reports) == 0 {
		return nil, ErrNotFound
	}
	return &data.Reports[len(data.Reports)-1], nil
}

// load reads the archive file, returning empty data if it does not exist.
func (a *Archive) load() (*archiveData, error) {
	raw, err := os.ReadFile(a.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &archiveData{Version: schemaVersion}, nil
		}
		return nil, fmt.Errorf("read archive: %w", err)
	}

	var data archiveData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse archive %s: %w", a.path, err)
	}
	if data.Version == "" {
		data.Version = schemaVersion
	}
	return &data, nil
}

// write persists the archive atomically.
func (a *Archive) write(data *archiveData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	return writeAtomic(a.path, raw)
}
