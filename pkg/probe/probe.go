// Package probe implements readiness checks for freshly started service
// groups. Starting a compose project only means the containers exist; the
// services inside still need time to bind listeners and elect leaders.
// Probes poll with bounded exponential backoff until the group is usable
// or the deadline passes.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
)

// Prober is a single readiness check. Probe returns nil once the target is
// usable; any error means not ready yet and is retried until the wait
// deadline.
type Prober interface {
	Name() string
	Probe(ctx context.Context) error
}

// Func adapts a bare function to the Prober interface.
type Func struct {
	ProbeName string
	Fn        func(ctx context.Context) error
}

func (f Func) Name() string { return f.ProbeName }

func (f Func) Probe(ctx context.Context) error { return f.Fn(ctx) }

// TCP reports ready once its address accepts a connection.
type TCP struct {
	Addr string
}

func (p TCP) Name() string { return "tcp " + p.Addr }

func (p TCP) Probe(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.Addr, err)
	}
	return conn.Close()
}

// HTTP reports ready once its URL answers with any non-5xx status.
type HTTP struct {
	URL string

	// Client overrides the HTTP client (optional).
	Client *http.Client
}

func (p HTTP) Name() string { return "http " + p.URL }

func (p HTTP) Probe(ctx context.Context) error {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", p.URL, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", p.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s answered %s", p.URL, resp.Status)
	}
	return nil
}

// Wait polls every probe in order until all pass or the timeout elapses.
// The timeout bounds the whole wait, not each probe. Individual failures
// are retried with exponential backoff; a nil or empty probe list succeeds
// immediately.
func Wait(ctx context.Context, logger hclog.Logger, timeout time.Duration, probes ...Prober) error {
	if len(probes) == 0 {
		return nil
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for _, p := range probes {
		logger.Info("waiting for readiness", "probe", p.Name())

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 250 * time.Millisecond
		bo.MaxInterval = 2 * time.Second
		bo.MaxElapsedTime = 0 // the context carries the deadline

		var lastErr error
		err := backoff.RetryNotify(
			func() error {
				err := p.Probe(waitCtx)
				if err != nil {
					lastErr = err
				}
				return err
			},
			backoff.WithContext(bo, waitCtx),
			func(err error, next time.Duration) {
				logger.Debug("not ready yet",
					"probe", p.Name(), "error", err, "retry_in", next)
			},
		)
		if err != nil {
			// On deadline the backoff loop surfaces the context error;
			// the last probe error is the useful part.
			if isContextErr(err) && lastErr != nil && !isContextErr(lastErr) {
				return fmt.Errorf("readiness probe %q timed out: %w", p.Name(), lastErr)
			}
			return fmt.Errorf("readiness probe %q: %w", p.Name(), err)
		}

		logger.Info("ready", "probe", p.Name())
	}

	return nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
