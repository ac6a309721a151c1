package histogram

import (
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromCountsSortsAndNormalizes(t *testing.T) {
	s := NewService(zerolog.Nop())

	bars := s.FromCounts(map[string]int{"11": 256, "00": 256, "01": 512})

	require.Len(t, bars, 3)
	assert.Equal(t, Bar{Label: "00", Count: 256, Probability: 0.25}, bars[0])
	assert.Equal(t, Bar{Label: "01", Count: 512, Probability: 0.5}, bars[1])
	assert.Equal(t, Bar{Label: "11", Count: 256, Probability: 0.25}, bars[2])
}

func TestFromCountsEmpty(t *testing.T) {
	s := NewService(zerolog.Nop())

	assert.Nil(t, s.FromCounts(nil))
	assert.Nil(t, s.FromCounts(map[string]int{}))
}

func TestFromCountsPadsRaggedLabels(t *testing.T) {
	s := NewService(zerolog.Nop())

	bars := s.FromCounts(map[string]int{"0": 3, "10": 1})

	require.Len(t, bars, 2)
	assert.Equal(t, "00", bars[0].Label)
	assert.Equal(t, "10", bars[1].Label)
	assert.InDelta(t, 0.75, bars[0].Probability, 1e-12)
}

func TestFromCountsMergesAliasedLabels(t *testing.T) {
	s := NewService(zerolog.Nop())

	// "1" and "01" are the same outcome once padded.
	bars := s.FromCounts(map[string]int{"1": 1, "01": 2})

	require.Len(t, bars, 1)
	assert.Equal(t, Bar{Label: "01", Count: 3, Probability: 1.0}, bars[0])
}

func TestChartDataMoments(t *testing.T) {
	s := NewService(zerolog.Nop())

	bars := s.FromCounts(map[string]int{"00": 1, "11": 1})
	data := s.ChartData(bars)

	assert.Equal(t, []string{"00", "11"}, data.Labels)
	assert.Equal(t, []float64{0.5, 0.5}, data.Values)
	// Register values 0 and 3 with equal weight.
	assert.InDelta(t, 1.5, data.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(4.5), data.StdDev, 1e-12)
}

func TestChartDataSingleShot(t *testing.T) {
	s := NewService(zerolog.Nop())

	data := s.ChartData(s.FromCounts(map[string]int{"1": 1}))

	assert.InDelta(t, 1.0, data.Mean, 1e-12)
	assert.Zero(t, data.StdDev)
}

func TestChartDataEmpty(t *testing.T) {
	s := NewService(zerolog.Nop())

	data := s.ChartData(nil)

	assert.NotNil(t, data.Labels)
	assert.NotNil(t, data.Values)
	assert.Empty(t, data.Labels)
	assert.Zero(t, data.Mean)
	assert.Zero(t, data.StdDev)
}

func TestChartDataSkipsNonBinaryLabels(t *testing.T) {
	s := NewService(zerolog.Nop())

	data := s.ChartData([]Bar{{Label: "err", Count: 5, Probability: 1.0}})

	assert.Equal(t, []string{"err"}, data.Labels)
	assert.Zero(t, data.Mean)
	assert.Zero(t, data.StdDev)
}

func TestRenderSingleOutcomeFullWidth(t *testing.T) {
	s := NewService(zerolog.Nop())

	out := Render(s.FromCounts(map[string]int{"01": 100}), 10)

	assert.Equal(t, 10, strings.Count(out, "█"))
	assert.Contains(t, out, "01")
	assert.Contains(t, out, "(100.0%)")
}

func TestRenderProportionalRuns(t *testing.T) {
	s := NewService(zerolog.Nop())

	out := Render(s.FromCounts(map[string]int{"0": 100, "1": 50}), 10)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	require.Len(t, lines, 2)
	assert.Equal(t, 10, strings.Count(lines[0], "█"))
	assert.Equal(t, 5, strings.Count(lines[1], "█"))
}

func TestRenderRareOutcomeStillVisible(t *testing.T) {
	s := NewService(zerolog.Nop())

	out := Render(s.FromCounts(map[string]int{"0": 1000, "1": 1}), 10)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	require.Len(t, lines, 2)
	assert.Equal(t, 1, strings.Count(lines[1], "█"))
}

func TestRenderEmpty(t *testing.T) {
	assert.Equal(t, "", Render(nil, 40))
}
