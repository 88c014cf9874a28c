package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/san-kum/stockflow/internal/sim"
)

type ExportData struct {
	Model      string               `json:"model"`
	Integrator string               `json:"integrator"`
	Status     string               `json:"status"`
	Error      string               `json:"error,omitempty"`
	Start      float64              `json:"start"`
	Stop       float64              `json:"stop"`
	Dt         float64              `json:"dt"`
	Steps      int                  `json:"steps"`
	Underflows int                  `json:"underflows,omitempty"`
	Times      []float64            `json:"times"`
	Columns    []string             `json:"columns"`
	Series     map[string][]float64 `json:"series"`
	Metrics    map[string]float64   `json:"metrics,omitempty"`
}

func exportData(model string, r *sim.Result, metrics map[string]float64) (ExportData, error) {
	meta := Metadata(model, r, metrics)
	data := ExportData{
		Model:      model,
		Integrator: meta.Integrator,
		Status:     meta.Status,
		Error:      meta.Error,
		Start:      meta.Start,
		Stop:       meta.Stop,
		Dt:         meta.Dt,
		Steps:      meta.Steps,
		Underflows: meta.Underflows,
		Times:      r.Times,
		Columns:    meta.Columns,
		Series:     make(map[string][]float64, len(meta.Columns)),
		Metrics:    metrics,
	}
	for _, key := range meta.Columns {
		col, err := r.Column(key)
		if err != nil {
			return ExportData{}, err
		}
		data.Series[key] = col
	}
	return data, nil
}

// WriteJSON encodes a run as indented JSON.
func WriteJSON(w io.Writer, model string, r *sim.Result, metrics map[string]float64) error {
	data, err := exportData(model, r, metrics)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func ExportJSON(path, model string, r *sim.Result, metrics map[string]float64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, model, r, metrics)
}

// WriteCSV writes one row per saved time: "time" followed by every column.
func WriteCSV(w io.Writer, r *sim.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"time"}, r.Columns()...)); err != nil {
		return err
	}
	for i, t := range r.Times {
		row := []string{strconv.FormatFloat(t, 'g', -1, 64)}
		for _, v := range r.Row(i) {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ExportCSV(path string, r *sim.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteCSV(file, r)
}

// ReadCSV parses the layout produced by WriteCSV.
func ReadCSV(rd io.Reader) (*sim.Result, error) {
	records, err := csv.NewReader(rd).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || len(records[0]) == 0 || records[0][0] != "time" {
		return nil, fmt.Errorf("storage: series header must start with \"time\"")
	}
	columns := records[0][1:]
	data := make([][]float64, len(columns))
	times := make([]float64, 0, len(records)-1)
	for line, rec := range records[1:] {
		if len(rec) != len(columns)+1 {
			return nil, fmt.Errorf("storage: line %d has %d fields, want %d", line+2, len(rec), len(columns)+1)
		}
		t, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, fmt.Errorf("storage: line %d: %w", line+2, err)
		}
		times = append(times, t)
		for c, cell := range rec[1:] {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("storage: line %d column %s: %w", line+2, columns[c], err)
			}
			data[c] = append(data[c], v)
		}
	}
	for c := range data {
		if data[c] == nil {
			data[c] = []float64{}
		}
	}
	return sim.NewTable(times, columns, data)
}
