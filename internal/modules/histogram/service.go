// Package histogram turns measurement counts into chart payloads and
// terminal-friendly bar renderings.
package histogram

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// defaultRenderWidth is the bar length used when Render is called with a
// non-positive width.
const defaultRenderWidth = 40

// Bar is a single outcome row of a measurement histogram.
type Bar struct {
	Label       string  `json:"label"`
	Count       int     `json:"count"`
	Probability float64 `json:"probability"`
}

// ChartData is the JSON payload consumed by the dashboard plot.
// Mean and StdDev are the count-weighted moments of the measured register
// value (each label parsed as a binary integer).
type ChartData struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
	Mean   float64   `json:"mean"`
	StdDev float64   `json:"std_dev"`
}

// Payload is the complete histogram document for one run: the sorted bars,
// the chart series derived from them and a pre-rendered text histogram.
// This is what gets cached and served per run.
type Payload struct {
	Bars     []Bar     `json:"bars"`
	Chart    ChartData `json:"chart"`
	Rendered string    `json:"rendered"`
}

// Service builds histogram payloads from raw measurement counts.
type Service struct {
	log zerolog.Logger
}

// NewService creates a new histogram service.
func NewService(log zerolog.Logger) *Service {
	return &Service{
		log: log.With().Str("service", "histogram").Logger(),
	}
}

// FromCounts converts raw counts into bars sorted by label.
// Labels are zero-padded to the widest label seen so ragged inputs from
// remote backends line up with the register width. Empty input yields an
// empty histogram, not an error.
func (s *Service) FromCounts(counts map[string]int) []Bar {
	if len(counts) == 0 {
		return nil
	}

	total := 0
	width := 0
	for label, count := range counts {
		total += count
		if len(label) > width {
			width = len(label)
		}
	}
	if total <= 0 {
		return nil
	}

	// Pad before merging: "1" and "01" name the same outcome.
	merged := make(map[string]int, len(counts))
	for label, count := range counts {
		if len(label) < width {
			label = strings.Repeat("0", width-len(label)) + label
		}
		merged[label] += count
	}

	bars := make([]Bar, 0, len(merged))
	for label, count := range merged {
		bars = append(bars, Bar{
			Label:       label,
			Count:       count,
			Probability: float64(count) / float64(total),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Label < bars[j].Label })

	return bars
}

// ChartData assembles the dashboard payload for a set of bars.
func (s *Service) ChartData(bars []Bar) ChartData {
	data := ChartData{
		Labels: make([]string, 0, len(bars)),
		Values: make([]float64, 0, len(bars)),
	}

	var values, weights []float64
	var totalWeight float64
	for _, b := range bars {
		data.Labels = append(data.Labels, b.Label)
		data.Values = append(data.Values, b.Probability)

		// Labels that do not parse as bitstrings are skipped for the
		// moments (remote backends may key counts however they like).
		v, err := strconv.ParseInt(b.Label, 2, 64)
		if err != nil {
			continue
		}
		values = append(values, float64(v))
		weights = append(weights, float64(b.Count))
		totalWeight += float64(b.Count)
	}

	if len(values) > 0 {
		data.Mean = stat.Mean(values, weights)
		// StdDev needs more than one total shot or the unbiased estimator
		// divides by zero.
		if totalWeight > 1 {
			data.StdDev = stat.StdDev(values, weights)
		}
	}

	return data
}

// BuildPayload assembles the full histogram document for one run's counts.
// Returns nil when there is nothing to draw.
func (s *Service) BuildPayload(counts map[string]int) *Payload {
	bars := s.FromCounts(counts)
	if len(bars) == 0 {
		return nil
	}
	return &Payload{
		Bars:     bars,
		Chart:    s.ChartData(bars),
		Rendered: Render(bars, defaultRenderWidth),
	}
}

// Render draws bars as proportional '█' runs, one row per outcome.
// The most frequent outcome spans the full width; a non-positive width
// falls back to the default.
func Render(bars []Bar, width int) string {
	if len(bars) == 0 {
		return ""
	}
	if width <= 0 {
		width = defaultRenderWidth
	}

	maxCount := 0
	labelWidth := 0
	for _, b := range bars {
		if b.Count > maxCount {
			maxCount = b.Count
		}
		if len(b.Label) > labelWidth {
			labelWidth = len(b.Label)
		}
	}
	if maxCount == 0 {
		return ""
	}

	var sb strings.Builder
	for _, b := range bars {
		run := int(math.Round(float64(b.Count) / float64(maxCount) * float64(width)))
		if run == 0 && b.Count > 0 {
			run = 1
		}
		fmt.Fprintf(&sb, "%-*s %s %d (%.1f%%)\n",
			labelWidth, b.Label, strings.Repeat("█", run), b.Count, b.Probability*100)
	}

	return sb.String()
}
