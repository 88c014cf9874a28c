package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/stockflow/internal/sim"
)

const (
	metadataFile = "metadata.json"
	seriesFile   = "series.csv"
)

// ErrRunNotFound is returned when no run directory matches an ID.
var ErrRunNotFound = errors.New("storage: run not found")

// Store keeps one directory per run under baseDir.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type RunMetadata struct {
	ID           string             `json:"id"`
	Model        string             `json:"model"`
	Timestamp    time.Time          `json:"timestamp"`
	Integrator   string             `json:"integrator"`
	Start        float64            `json:"start"`
	Stop         float64            `json:"stop"`
	Dt           float64            `json:"dt"`
	SaveInterval float64            `json:"save_interval"`
	Status       string             `json:"status"`
	Steps        int                `json:"steps"`
	Underflows   int                `json:"underflows,omitempty"`
	Error        string             `json:"error,omitempty"`
	Columns      []string           `json:"columns"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// Metadata describes a finished run without persisting it.
func Metadata(model string, r *sim.Result, metrics map[string]float64) RunMetadata {
	meta := RunMetadata{
		Model:        model,
		Timestamp:    time.Now().UTC(),
		Integrator:   r.Integrator,
		Start:        r.Config.Start,
		Stop:         r.Config.Stop,
		Dt:           r.Config.Dt,
		SaveInterval: r.Config.SaveInterval,
		Status:       r.Status.String(),
		Steps:        r.StepsTaken,
		Underflows:   r.Underflows,
		Columns:      r.Columns(),
		Metrics:      metrics,
	}
	if r.Err != nil {
		meta.Error = r.Err.Error()
	}
	return meta
}

// Save writes metadata.json and series.csv into a fresh run directory and
// returns the run ID.
func (s *Store) Save(model string, r *sim.Result, metrics map[string]float64) (string, error) {
	meta := Metadata(model, r, metrics)
	meta.ID = uuid.NewString()
	runDir := filepath.Join(s.baseDir, meta.ID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, seriesFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := WriteCSV(csvFile, r); err != nil {
		return "", fmt.Errorf("write %s: %w", seriesFile, err)
	}
	return meta.ID, nil
}

// List returns stored runs, newest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("%w: %q is not a run id", ErrRunNotFound, runID)
	}
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadResult reads a run's series back into a queryable table.
func (s *Store) LoadResult(runID string) (*sim.Result, error) {
	if _, err := s.Load(runID); err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(s.baseDir, runID, seriesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCSV(file)
}
