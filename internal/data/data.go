// Package data reads historical time series from wide CSV files.
//
// The first row holds time stamps after a leading label cell ("Time" or
// "parameter"); each following row is one series named like
// "Population[Africa,female]". Header cells that are not numbers (a "unit"
// column, say) are ignored, as are empty cells. A series observed only once
// holds that value for the whole run.
package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/san-kum/stockflow/internal/lookup"
)

// ErrNoFiles is returned when no pattern matches a file.
var ErrNoFiles = errors.New("data: no files matched")

// Series is one row of a data file.
type Series struct {
	Name   string
	Labels []string
	Points []lookup.Point
}

// Key joins the labels the way graph.Variable.Series is keyed.
func (s Series) Key() string { return strings.Join(s.Labels, ",") }

// Set groups series by variable name and element key.
type Set map[string]map[string][]lookup.Point

func (s Set) add(sr Series, source string) error {
	byKey, ok := s[sr.Name]
	if !ok {
		byKey = make(map[string][]lookup.Point)
		s[sr.Name] = byKey
	}
	if _, dup := byKey[sr.Key()]; dup {
		return fmt.Errorf("data: %s: duplicate series %s[%s]", source, sr.Name, sr.Key())
	}
	byKey[sr.Key()] = sr.Points
	return nil
}

// Names lists the variables present in the set.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseName splits "Name[a,b]" into its name and labels.
func ParseName(raw string) (string, []string, error) {
	raw = strings.TrimSpace(raw)
	open := strings.IndexByte(raw, '[')
	if open < 0 {
		if raw == "" {
			return "", nil, fmt.Errorf("data: empty series name")
		}
		return raw, nil, nil
	}
	if !strings.HasSuffix(raw, "]") || open == 0 {
		return "", nil, fmt.Errorf("data: malformed series name %q", raw)
	}
	name := strings.TrimSpace(raw[:open])
	var labels []string
	for _, l := range strings.Split(raw[open+1:len(raw)-1], ",") {
		l = strings.TrimSpace(l)
		if l == "" {
			return "", nil, fmt.Errorf("data: empty label in %q", raw)
		}
		labels = append(labels, l)
	}
	return name, labels, nil
}

// ReadCSV parses one wide CSV document.
func ReadCSV(r io.Reader) ([]Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("data: empty file")
		}
		return nil, fmt.Errorf("data: header: %w", err)
	}

	times := make(map[int]float64)
	for i, cell := range header[1:] {
		if t, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err == nil {
			times[i+1] = t
		}
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("data: header has no time columns")
	}

	var out []Series
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("data: line %d: %w", line, err)
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		name, labels, err := ParseName(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		s := Series{Name: name, Labels: labels}
		for i := 1; i < len(rec); i++ {
			t, ok := times[i]
			cell := strings.TrimSpace(rec[i])
			if !ok || cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("data: line %d column %d: %w", line, i+1, err)
			}
			s.Points = append(s.Points, lookup.Point{X: t, Y: v})
		}
		if len(s.Points) == 0 {
			return nil, fmt.Errorf("data: line %d: %s has no values", line, strings.TrimSpace(rec[0]))
		}
		sort.Slice(s.Points, func(a, b int) bool { return s.Points[a].X < s.Points[b].X })
		out = append(out, s)
	}
	return out, nil
}

func ReadFile(path string) ([]Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	series, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return series, nil
}

// Glob expands doublestar patterns relative to base. Absolute patterns are
// used as they are.
func Glob(base string, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, p := range patterns {
		if !filepath.IsAbs(p) && base != "" {
			p = filepath.Join(base, p)
		}
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			return nil, fmt.Errorf("data: pattern %q: %w", p, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	if len(files) == 0 && len(patterns) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFiles, strings.Join(patterns, ", "))
	}
	sort.Strings(files)
	return files, nil
}

// Load reads every file matched by patterns into one set.
func Load(base string, patterns []string) (Set, error) {
	files, err := Glob(base, patterns)
	if err != nil {
		return nil, err
	}
	set := make(Set)
	for _, f := range files {
		series, err := ReadFile(f)
		if err != nil {
			return nil, err
		}
		for _, s := range series {
			if err := set.add(s, f); err != nil {
				return nil, err
			}
		}
	}
	return set, nil
}
