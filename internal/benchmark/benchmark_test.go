package benchmark

import (
	"bytes"
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/objones25/gamm/internal/config"
	"github.com/objones25/gamm/internal/linalg"
	"github.com/objones25/gamm/internal/logging"
	"github.com/objones25/gamm/internal/store"
	"github.com/objones25/gamm/internal/svd"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func testSettings(bins ...string) Settings {
	return Settings{L: 8, T: 2, Beta: 1, Bins: bins, SVD: svd.DefaultOptions(), TTL: time.Minute}
}

func testInputs(seed int64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewSource(seed))
	return linalg.RandomMatrix(rng, 30, 120), linalg.RandomMatrix(rng, 25, 120)
}

func TestEntries(t *testing.T) {
	entries, err := Entries(Settings{L: 4, T: 3, Bins: []string{config.BinAll}, SVD: svd.DefaultOptions()})
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{
		"single-threaded",
		"intra-parallel",
		"inter-parallel",
		"combined-parallel-1",
		"combined-parallel-2",
		"combined-parallel-3",
	}, names)
	for i, want := range [][2]int{{1, 0}, {3, 0}, {3, 3}, {3, 1}, {3, 2}, {3, 3}} {
		strategy := entries[i].New()
		threads, workers := shape(strategy)
		assert.Equal(t, want, [2]int{threads, workers}, entries[i].Name)
		if c, ok := strategy.(interface{ Close() }); ok {
			c.Close()
		}
	}

	_, err = Entries(testSettings("bogus"))
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestRun(t *testing.T) {
	logging.ForTest(t, zerolog.ErrorLevel)
	x, y := testInputs(1)

	report, err := NewRunner(testSettings(config.BinSingle, config.BinCombined), nil).Run(context.Background(), x, y)
	require.NoError(t, err)
	require.Len(t, report.Results, 3)
	assert.Equal(t, 30, report.XRows)
	assert.Equal(t, 25, report.YRows)
	assert.Equal(t, 120, report.Columns)
	assert.Greater(t, report.ExactNorm, 0.0)

	for _, res := range report.Results {
		assert.Empty(t, res.Err, res.Name)
		assert.False(t, res.Cached)
		assert.Greater(t, res.SpectralError, 0.0, res.Name)
		assert.False(t, math.IsInf(res.RelativeError, 0), res.Name)
		assert.GreaterOrEqual(t, res.FrobeniusError+1e-9, res.SpectralError, res.Name)
	}

	assert.Equal(t, 1, report.Results[0].Threads)
	assert.Equal(t, 0, report.Results[0].Workers)
	assert.Equal(t, 2, report.Results[2].Threads)
	assert.Equal(t, 2, report.Results[2].Workers)

	// single and combined with one worker perform the same arithmetic
	assert.Equal(t, report.Results[0].SpectralError, report.Results[1].SpectralError)
}

func TestRunRecordsFailures(t *testing.T) {
	logging.ForTest(t, zerolog.Disabled)
	rng := rand.New(rand.NewSource(2))
	x, y := linalg.RandomMatrix(rng, 10, 12), linalg.RandomMatrix(rng, 10, 12)

	report, err := NewRunner(testSettings(config.BinSingle, config.BinInter), nil).Run(context.Background(), x, y)
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Empty(t, report.Results[0].Err)
	assert.Contains(t, report.Results[1].Err, "split")
}

func TestRunCancelled(t *testing.T) {
	logging.ForTest(t, zerolog.ErrorLevel)
	x, y := testInputs(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewRunner(testSettings(config.BinSingle), nil).Run(ctx, x, y)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Empty(t, report.Results)
}

func TestRunUsesCache(t *testing.T) {
	logging.ForTest(t, zerolog.ErrorLevel)
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)
	cache, err := store.NewSketchCache(store.Config{Addr: s.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	x, y := testInputs(4)
	runner := NewRunner(testSettings(config.BinSingle), cache)

	first, err := runner.Run(context.Background(), x, y)
	require.NoError(t, err)
	require.Len(t, first.Results, 1)
	assert.False(t, first.Results[0].Cached)

	keys, err := cache.Keys(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	second, err := runner.Run(context.Background(), x, y)
	require.NoError(t, err)
	require.Len(t, second.Results, 1)
	assert.True(t, second.Results[0].Cached)
	assert.InDelta(t, first.Results[0].SpectralError, second.Results[0].SpectralError, 1e-9)
}

func TestReportOutput(t *testing.T) {
	report := &Report{
		XRows:        3,
		ExactSeconds: 0.25,
		Results: []Result{
			{Name: "single-threaded", Strategy: "single", Seconds: 1.5, SpectralError: 0.125},
			{Name: "inter-parallel", Strategy: "inter", Err: "split too small"},
		},
	}

	var buf bytes.Buffer
	report.WriteTable(&buf)
	assert.Contains(t, buf.String(), "Lib-MM 250ms")
	assert.Contains(t, buf.String(), "single-threaded")
	assert.Contains(t, buf.String(), "skipped - split too small")

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, report.Save(path))
	loaded, err := LoadReport(path)
	require.NoError(t, err)
	assert.Equal(t, report.Results, loaded.Results)
	assert.Equal(t, 3, loaded.XRows)
}

func TestMonitor(t *testing.T) {
	m := newMonitor(time.Millisecond)
	m.Start()
	sum := 0.0
	for i := 0; i < 1_000_000; i++ {
		sum += float64(i)
	}
	usage := m.Stop()
	assert.Greater(t, sum, 0.0)
	if m.process != nil {
		assert.Greater(t, usage.PeakRSS, uint64(0))
		assert.GreaterOrEqual(t, usage.CPUSeconds, 0.0)
	}
}
