package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"readiness/internal/activity"
	"readiness/internal/analysis"
	"readiness/internal/day"
	"readiness/internal/orchestrator"
	"readiness/internal/score"
	"readiness/internal/wellness"
)

// ScorePeeker reads a cached score without computing it
type ScorePeeker interface {
	Get(ctx context.Context, t score.Type, day string) (score.Result, error)
}

// SleepComputer scores one night from the wellness adapter
type SleepComputer struct {
	calc   *score.Calculator
	inputs *Inputs
}

// NewSleepComputer creates the Sleep computer
func NewSleepComputer(calc *score.Calculator, inputs *Inputs) *SleepComputer {
	return &SleepComputer{calc: calc, inputs: inputs}
}

// Compute implements orchestrator.Computer
func (c *SleepComputer) Compute(ctx context.Context, req orchestrator.Request) (score.Result, error) {
	profile, err := c.inputs.Profile(ctx)
	if err != nil {
		return score.Result{}, err
	}
	sample, baseline, err := c.inputs.Wellness(ctx, req.Day)
	if err != nil {
		return score.Result{}, err
	}
	return c.calc.Sleep(score.SleepInput{
		Day:          req.Day,
		At:           req.StartedAt,
		Sample:       sample,
		Baseline:     baseline,
		Need:         profile.SleepNeed,
		Personalized: c.inputs.Personalized(ctx),
	}), nil
}

// RecoveryComputer scores one morning. The same-day Sleep result arrives as
// the request's upstream; the previous day's training load supplies form.
type RecoveryComputer struct {
	calc   *score.Calculator
	inputs *Inputs
	log    *zap.Logger
}

// NewRecoveryComputer creates the Recovery computer
func NewRecoveryComputer(calc *score.Calculator, inputs *Inputs, log *zap.Logger) *RecoveryComputer {
	if log == nil {
		log = zap.NewNop()
	}
	return &RecoveryComputer{calc: calc, inputs: inputs, log: log.Named("recovery")}
}

// Compute implements orchestrator.Computer
func (c *RecoveryComputer) Compute(ctx context.Context, req orchestrator.Request) (score.Result, error) {
	var (
		sample   *wellness.DailySample
		baseline wellness.Baseline
		load     *analysis.LoadState
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sample, baseline, err = c.inputs.Wellness(gctx, req.Day)
		return err
	})
	g.Go(func() error {
		trend, err := c.inputs.TrainingLoad(gctx, req.Day)
		if err != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			// Form is one optional sub-score; its absence is not fatal
			c.log.Warn("training load unavailable", zap.String("day", req.Day), zap.Error(err))
			return nil
		}
		if s, ok := trend.On(day.Add(req.Day, -1), c.inputs.Location()); ok {
			load = &s
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return score.Result{}, err
	}

	return c.calc.Recovery(score.RecoveryInput{
		Day:          req.Day,
		At:           req.StartedAt,
		Sample:       sample,
		Baseline:     baseline,
		Sleep:        req.Upstream,
		Load:         load,
		Personalized: c.inputs.Personalized(ctx),
	}), nil
}

// StrainComputer scores one day's exertion. It reads the day's Recovery
// from the cache when present and never triggers a Recovery computation.
type StrainComputer struct {
	calc     *score.Calculator
	inputs   *Inputs
	recovery ScorePeeker
	log      *zap.Logger
}

// NewStrainComputer creates the Strain computer. recovery may be nil.
func NewStrainComputer(calc *score.Calculator, inputs *Inputs, recovery ScorePeeker, log *zap.Logger) *StrainComputer {
	if log == nil {
		log = zap.NewNop()
	}
	return &StrainComputer{calc: calc, inputs: inputs, recovery: recovery, log: log.Named("strain")}
}

// Compute implements orchestrator.Computer
func (c *StrainComputer) Compute(ctx context.Context, req orchestrator.Request) (score.Result, error) {
	profile, err := c.inputs.Profile(ctx)
	if err != nil {
		return score.Result{}, err
	}
	personalized := c.inputs.Personalized(ctx)

	var (
		acts   []activity.Unified
		known  bool
		sample *wellness.DailySample
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := c.inputs.Activities(gctx, req.Day)
		if err != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			c.log.Warn("workout history unavailable", zap.String("day", req.Day), zap.Error(err))
			return nil
		}
		acts, known = a, true
		return nil
	})
	if personalized {
		g.Go(func() error {
			s, _, err := c.inputs.Wellness(gctx, req.Day)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.log.Warn("wellness metrics unavailable", zap.String("day", req.Day), zap.Error(err))
				return nil
			}
			sample = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return score.Result{}, err
	}

	return c.calc.Strain(score.StrainInput{
		Day:             req.Day,
		At:              req.StartedAt,
		Activities:      acts,
		ActivitiesKnown: known,
		Sample:          sample,
		Profile:         profile,
		Recovery:        c.peekRecovery(ctx, req.Day),
		Personalized:    personalized,
	}), nil
}

func (c *StrainComputer) peekRecovery(ctx context.Context, dayKey string) *score.Result {
	if c.recovery == nil {
		return nil
	}
	r, err := c.recovery.Get(ctx, score.Recovery, dayKey)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			c.log.Debug("no cached recovery", zap.String("day", dayKey), zap.Error(err))
		}
		return nil
	}
	if !r.Trustworthy() {
		return nil
	}
	return &r
}

var (
	_ orchestrator.Computer = (*SleepComputer)(nil)
	_ orchestrator.Computer = (*RecoveryComputer)(nil)
	_ orchestrator.Computer = (*StrainComputer)(nil)
)
