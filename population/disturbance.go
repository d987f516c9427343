package population

import (
	"log/slog"
	"math/rand"
)

// DisturbanceConfig schedules stand-clearing events.
type DisturbanceConfig struct {
	Enabled bool    `yaml:"enabled"`
	First   float64 `yaml:"first"`  // time of the first clearing
	Mean    float64 `yaml:"mean"`   // mean return interval (yr)
	Jitter  float64 `yaml:"jitter"` // half-width of the uniform jitter (yr)
}

// Disturbance decides when the patch is cleared.
type Disturbance struct {
	cfg   DisturbanceConfig
	seed  int64
	rng   *rand.Rand
	draws int
	next  float64
}

// NewDisturbance creates a schedule drawing intervals from a seeded source.
func NewDisturbance(cfg DisturbanceConfig, seed int64) *Disturbance {
	return &Disturbance{
		cfg:  cfg,
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
		next: cfg.First,
	}
}

// Draws returns how many intervals have been drawn from the source.
func (d *Disturbance) Draws() int {
	return d.draws
}

// Restore reseeds the source and replays draws intervals so that a resumed
// run continues the same schedule.
func (d *Disturbance) Restore(next float64, draws int) {
	d.rng = rand.New(rand.NewSource(d.seed))
	for range draws {
		d.rng.Float64()
	}
	d.draws = draws
	d.next = next
}

// Next returns the time of the next clearing.
func (d *Disturbance) Next() float64 {
	return d.next
}

// Apply clears the community if a clearing is due at t and schedules the
// next one. It reports whether the patch was cleared.
func (d *Disturbance) Apply(t float64, c *Community) bool {
	if !d.cfg.Enabled || t < d.next {
		return false
	}
	c.ClearPatch()
	d.next = t + d.cfg.Mean + d.cfg.Jitter*(2*d.rng.Float64()-1)
	d.draws++
	slog.Info("patch cleared", "t", t, "next", d.next)
	return true
}
