package kenter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/kilianp07/kenter-mqtt/auth"
	"github.com/kilianp07/kenter-mqtt/core/model"
	"github.com/kilianp07/kenter-mqtt/infra/logger"
)

// TokenSource hands out bearer tokens and drops tokens the API rejected.
type TokenSource interface {
	GetToken(ctx context.Context) (model.AccessToken, error)
	Invalidate(tok model.AccessToken)
}

// DayClient performs a single request for one day of readings.
type DayClient interface {
	Fetch(ctx context.Context, q model.MeteringQuery, day time.Time, tok model.AccessToken) ([]model.Measurement, error)
}

// RetryConfig bounds the exponential backoff applied to rate limited and
// transient failures.
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts"`
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval"`
	Multiplier      float64       `json:"multiplier" yaml:"multiplier"`
}

// SetDefaults fills unset fields.
func (c *RetryConfig) SetDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Second
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2
	}
}

// Fetcher retrieves a day of readings, taking care of authentication and
// retries within a single poll cycle.
type Fetcher struct {
	client DayClient
	tokens TokenSource
	retry  RetryConfig
	log    logger.Logger
}

// NewFetcher wires a DayClient to a TokenSource.
func NewFetcher(client DayClient, tokens TokenSource, retry RetryConfig, log logger.Logger) *Fetcher {
	retry.SetDefaults()
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Fetcher{client: client, tokens: tokens, retry: retry, log: log}
}

// Fetch returns the readings of q for day. An Unauthorized answer
// invalidates the token and is retried once with a fresh one. Rate limited
// and transient failures are retried with exponential backoff up to
// MaxAttempts. Everything else aborts immediately.
func (f *Fetcher) Fetch(ctx context.Context, q model.MeteringQuery, day time.Time) ([]model.Measurement, error) {
	var (
		lastErr     error
		reauthSpent bool
	)
	op := func() ([]model.Measurement, error) {
		ms, err := f.attempt(ctx, q, day, &reauthSpent)
		if err == nil {
			return ms, nil
		}
		lastErr = err
		return nil, f.retryDecision(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.retry.InitialInterval
	bo.MaxInterval = f.retry.MaxInterval
	bo.Multiplier = f.retry.Multiplier

	ms, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(f.retry.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			f.log.Warnf("fetch %s failed, retrying in %s: %v", q.MeteringPointID, next, lastErr)
		}),
	)
	if err == nil {
		return ms, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && lastErr != nil {
		return nil, fmt.Errorf("fetch %s: %w (last error: %v)", q.MeteringPointID, ctxErr, lastErr)
	}
	if lastErr != nil {
		err = lastErr
	}
	return nil, fmt.Errorf("fetch %s: %w", q.MeteringPointID, err)
}

// attempt performs one fetch, including the single re-authentication
// allowed per cycle.
func (f *Fetcher) attempt(ctx context.Context, q model.MeteringQuery, day time.Time, reauthSpent *bool) ([]model.Measurement, error) {
	tok, err := f.tokens.GetToken(ctx)
	if err != nil {
		return nil, err
	}
	ms, err := f.client.Fetch(ctx, q, day, tok)
	if err == nil || !errors.Is(err, ErrUnauthorized) || *reauthSpent {
		return ms, err
	}

	*reauthSpent = true
	f.log.Warnf("token rejected for %s, refreshing", q.MeteringPointID)
	f.tokens.Invalidate(tok)
	tok, err = f.tokens.GetToken(ctx)
	if err != nil {
		return nil, err
	}
	return f.client.Fetch(ctx, q, day, tok)
}

func (f *Fetcher) retryDecision(err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		if !fe.Retryable() {
			return backoff.Permanent(err)
		}
		if fe.Kind == KindRateLimited && fe.RetryAfter > 0 {
			wait := fe.RetryAfter
			if wait > f.retry.MaxInterval {
				wait = f.retry.MaxInterval
			}
			return backoff.RetryAfter(int((wait + time.Second - 1) / time.Second))
		}
		return err
	}
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return backoff.Permanent(err)
	}
	// Token endpoint unreachable: worth another attempt.
	return err
}
