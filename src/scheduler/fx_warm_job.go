package scheduler

import (
	"context"
	"time"
)

// RateWarmer preloads exchange rates into the FX cache and store.
type RateWarmer interface {
	Warm(ctx context.Context, currencies []string, to string) error
}

// FXWarmJob refreshes the rates for the currencies a portfolio usually pays in.
type FXWarmJob struct {
	warmer     RateWarmer
	currencies []string
	target     string
	timeout    time.Duration
}

// NewFXWarmJob creates the FX warm-up job.
func NewFXWarmJob(warmer RateWarmer, currencies []string, target string, timeout time.Duration) *FXWarmJob {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &FXWarmJob{warmer: warmer, currencies: currencies, target: target, timeout: timeout}
}

func (j *FXWarmJob) Name() string { return "fx_warm" }

func (j *FXWarmJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	return j.warmer.Warm(ctx, j.currencies, j.target)
}
