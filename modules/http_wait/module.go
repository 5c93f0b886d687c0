// Package http_wait provides a readiness probe: the job polls a URL with
// exponential backoff until it answers with the expected status or the
// probe gives up.
package http_wait

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/vk/jobgrid/internal/ctxlog"
	"github.com/vk/jobgrid/internal/grid"
	"github.com/vk/jobgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the http_wait kind.
type Input struct {
	URL    string `hcl:"url" validate:"required,url"`
	Status int    `hcl:"status,optional" validate:"omitempty,gte=100,lte=599"`
	// Interval is the first delay between two probes.
	Interval string `hcl:"interval,optional"`
	// GiveUpAfter bounds the total probing time.
	GiveUpAfter string `hcl:"give_up_after,optional"`
}

// Register registers the kind with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterKind("http_wait", build)
}

type probe struct {
	name     string
	url      string
	status   int
	interval time.Duration
	giveUp   time.Duration
	client   *http.Client
}

func build(_ context.Context, spec *grid.JobSpec) (*registry.Runnable, error) {
	var input Input
	if err := spec.Decode(&input); err != nil {
		return nil, err
	}

	p := &probe{
		name:     spec.Name,
		url:      input.URL,
		status:   input.Status,
		interval: 100 * time.Millisecond,
		giveUp:   30 * time.Second,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
	if p.status == 0 {
		p.status = http.StatusOK
	}
	var err error
	if input.Interval != "" {
		if p.interval, err = time.ParseDuration(input.Interval); err != nil {
			return nil, fmt.Errorf("job %q: invalid interval: %w", spec.Name, err)
		}
	}
	if input.GiveUpAfter != "" {
		if p.giveUp, err = time.ParseDuration(input.GiveUpAfter); err != nil {
			return nil, fmt.Errorf("job %q: invalid give_up_after: %w", spec.Name, err)
		}
	}
	return &registry.Runnable{Action: p.run}, nil
}

// run probes until the target answers, the policy gives up or ctx ends. A
// deadline falling between two attempts is reported as ctx.Err().
func (p *probe) run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("job", p.name, "url", p.url)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.interval
	b.MaxElapsedTime = p.giveUp
	b.Reset()

	for attempts := 1; ; attempts++ {
		err := p.once(ctx)
		if err == nil {
			logger.Info("Target is ready", "attempts", attempts)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		next := b.NextBackOff()
		if next == backoff.Stop {
			return fmt.Errorf("%s not ready after %d attempt(s): %w", p.url, attempts, err)
		}
		logger.Debug("Target not ready yet", "error", err, "retry_in", next)

		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (p *probe) once(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != p.status {
		return fmt.Errorf("got status %d, want %d", resp.StatusCode, p.status)
	}
	return nil
}
