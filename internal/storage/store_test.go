package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/san-kum/stockflow/internal/config"
	"github.com/san-kum/stockflow/internal/integrators"
	"github.com/san-kum/stockflow/internal/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decayRun(t *testing.T) *sim.Result {
	t.Helper()
	cfg := config.GetPreset("decay", "slow")
	cfg.Run.Stop = 5
	g, err := cfg.Build()
	require.NoError(t, err)
	integ, err := integrators.New(cfg.Run.Integrator)
	require.NoError(t, err)
	r, err := sim.Run(context.Background(), g, integ, cfg.RunConfig())
	require.NoError(t, err)
	return r
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	result := decayRun(t)
	runID, err := st.Save("decay/slow", result, map[string]float64{"stock.final": 77.88})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	meta, err := st.Load(runID)
	require.NoError(t, err)
	assert.Equal(t, "decay/slow", meta.Model)
	assert.Equal(t, "rk4", meta.Integrator)
	assert.Equal(t, "completed", meta.Status)
	assert.Equal(t, 20, meta.Steps)
	assert.Equal(t, 77.88, meta.Metrics["stock.final"])

	loaded, err := st.LoadResult(runID)
	require.NoError(t, err)
	assert.Equal(t, result.Times, loaded.Times)
	assert.Equal(t, result.Columns(), loaded.Columns())

	want, _ := result.Series("stock")
	got, err := loaded.Series("stock")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	result := decayRun(t)
	first, err := st.Save("a", result, nil)
	require.NoError(t, err)
	second, err := st.Save("b", result, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	runs, err := st.List()
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestStoreListMissingDir(t *testing.T) {
	st := New(t.TempDir() + "/missing")
	runs, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStoreLoadUnknown(t *testing.T) {
	st := New(t.TempDir())
	for _, id := range []string{"../etc", "6f1c3f7e-8d7b-4c43-9d0c-2f1e0c7b4a11"} {
		_, err := st.Load(id)
		assert.True(t, errors.Is(err, ErrRunNotFound), "id %s: %v", id, err)
	}
}

func TestWriteJSON(t *testing.T) {
	result := decayRun(t)
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, "decay", result, nil))

	var data ExportData
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Equal(t, "decay", data.Model)
	assert.Equal(t, result.Times, data.Times)
	assert.Len(t, data.Series["stock"], result.Len())
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"no time header", "t,a\n0,1\n"},
		{"short row", "time,a,b\n0,1\n"},
		{"bad number", "time,a\n0,x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(bytes.NewBufferString(tt.in))
			assert.Error(t, err)
		})
	}
}
