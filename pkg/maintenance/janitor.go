package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/nanda/kirana/pkg/history"
	"github.com/nanda/kirana/pkg/registry"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Config holds janitor scheduling and retention settings
type Config struct {
	SweepSpec  string        `json:"sweep_spec" mapstructure:"sweep_spec"`
	PruneSpec  string        `json:"prune_spec" mapstructure:"prune_spec"`
	StaleAfter time.Duration `json:"stale_after" mapstructure:"stale_after"`
	RetainFor  time.Duration `json:"retain_for" mapstructure:"retain_for"`
	Logger     zerolog.Logger `json:"-" mapstructure:"-"`
}

// DefaultConfig returns default janitor configuration
func DefaultConfig() Config {
	return Config{
		SweepSpec:  "@every 1m",
		PruneSpec:  "@every 1h",
		StaleAfter: 2 * time.Minute,
		RetainFor:  30 * 24 * time.Hour,
	}
}

// Janitor runs periodic upkeep: marking agents with stale heartbeats
// offline and pruning old history.
type Janitor struct {
	cfg    Config
	reg    *registry.Registry
	store  history.Store // may be nil
	cron   *cron.Cron
	logger zerolog.Logger
}

// New creates a janitor. store may be nil when history is not persisted.
func New(cfg Config, reg *registry.Registry, store history.Store) *Janitor {
	def := DefaultConfig()
	if cfg.SweepSpec == "" {
		cfg.SweepSpec = def.SweepSpec
	}
	if cfg.PruneSpec == "" {
		cfg.PruneSpec = def.PruneSpec
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.RetainFor <= 0 {
		cfg.RetainFor = def.RetainFor
	}

	return &Janitor{
		cfg:    cfg,
		reg:    reg,
		store:  store,
		logger: cfg.Logger,
	}
}

// Start schedules the upkeep jobs
func (j *Janitor) Start() error {
	c := cron.New()

	if _, err := c.AddFunc(j.cfg.SweepSpec, j.RunSweep); err != nil {
		return fmt.Errorf("invalid sweep spec %q: %w", j.cfg.SweepSpec, err)
	}
	if j.store != nil {
		if _, err := c.AddFunc(j.cfg.PruneSpec, j.RunPrune); err != nil {
			return fmt.Errorf("invalid prune spec %q: %w", j.cfg.PruneSpec, err)
		}
	}

	c.Start()
	j.cron = c

	j.logger.Info().
		Str("sweep", j.cfg.SweepSpec).
		Str("prune", j.cfg.PruneSpec).
		Msg("Janitor started")
	return nil
}

// RunSweep marks agents with stale heartbeats offline
func (j *Janitor) RunSweep() {
	if n := j.reg.SweepStale(j.cfg.StaleAfter); n > 0 {
		j.logger.Warn().Int("offline", n).Msg("Swept stale agents")
	}
}

// RunPrune removes history past the retention window
func (j *Janitor) RunPrune() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := j.store.Prune(ctx, j.cfg.RetainFor); err != nil {
		j.logger.Error().Err(err).Msg("History prune failed")
	}
}

// Stop halts scheduling and waits for running jobs to finish
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	j.logger.Info().Msg("Janitor stopped")
}
