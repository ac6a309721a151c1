package datasets

import "github.com/qfitlab/qfit/internal/domain"

// seedDatasets are installed on first boot so the dashboard has something
// to run immediately. The linear ramp is the canonical walkthrough input;
// the parabola exercises a quadratic fit with a 4x4 padded system.
var seedDatasets = []domain.Dataset{
	{
		Name:        "linear-ramp",
		Description: "Four points on y = x, the canonical walkthrough input",
		Points: []domain.Point{
			{X: 0, Y: 0},
			{X: 1, Y: 1},
			{X: 2, Y: 2},
			{X: 3, Y: 3},
		},
	},
	{
		Name:        "noisy-parabola",
		Description: "Points near y = x^2 with fixed measurement noise",
		Points: []domain.Point{
			{X: 0.0, Y: 0.05},
			{X: 0.5, Y: 0.30},
			{X: 1.0, Y: 0.95},
			{X: 1.5, Y: 2.35},
			{X: 2.0, Y: 3.88},
			{X: 2.5, Y: 6.30},
			{X: 3.0, Y: 9.12},
		},
	},
}

// Seed installs the demo datasets when the table is empty. Calling it on a
// populated database is a no-op, so boots after the first are unaffected.
func (r *Repository) Seed() error {
	count, err := r.Count()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, ds := range seedDatasets {
		if err := r.Create(&ds); err != nil {
			return err
		}
		r.log.Info().
			Str("name", ds.Name).
			Int("points", len(ds.Points)).
			Msg("Seeded demo dataset")
	}

	return nil
}
