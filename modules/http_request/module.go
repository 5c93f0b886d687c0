package http_request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vk/jobgrid/internal/ctxlog"
	"github.com/vk/jobgrid/internal/grid"
	"github.com/vk/jobgrid/internal/registry"
	"golang.org/x/time/rate"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Client overrides the HTTP client built for each job.
	Client *http.Client
}

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	URL          string            `hcl:"url" validate:"required,url"`
	Method       string            `hcl:"method,optional" validate:"omitempty,oneof=GET HEAD POST PUT PATCH DELETE OPTIONS"`
	Body         string            `hcl:"body,optional"`
	Headers      map[string]string `hcl:"headers,optional"`
	ExpectStatus int               `hcl:"expect_status,optional" validate:"omitempty,gte=100,lte=599"`
	// Repeat sends the request this many times. Zero means once.
	Repeat int `hcl:"repeat,optional" validate:"gte=0"`
	// Rate caps the number of requests per second. Zero means no cap.
	Rate    float64 `hcl:"rate,optional" validate:"gte=0"`
	Timeout string  `hcl:"timeout,optional"`
}

// Register registers the kind with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterKind("http_request", m.build)
}

type requester struct {
	name    string
	input   Input
	client  *http.Client
	limiter *rate.Limiter
}

func (m *Module) build(_ context.Context, spec *grid.JobSpec) (*registry.Runnable, error) {
	var input Input
	if err := spec.Decode(&input); err != nil {
		return nil, err
	}
	if input.Method == "" {
		input.Method = http.MethodGet
	}
	if input.Repeat == 0 {
		input.Repeat = 1
	}

	client := m.Client
	if client == nil {
		client = &http.Client{}
		if input.Timeout != "" {
			d, err := time.ParseDuration(input.Timeout)
			if err != nil {
				return nil, fmt.Errorf("job %q: invalid timeout: %w", spec.Name, err)
			}
			client.Timeout = d
		}
	}

	limit := rate.Inf
	if input.Rate > 0 {
		limit = rate.Limit(input.Rate)
	}
	rq := &requester{
		name:    spec.Name,
		input:   input,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}
	return &registry.Runnable{
		Action: rq.run,
		Shutdown: func(context.Context) error {
			client.CloseIdleConnections()
			return nil
		},
	}, nil
}

func (rq *requester) run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("job", rq.name, "method", rq.input.Method, "url", rq.input.URL)
	for i := 0; i < rq.input.Repeat; i++ {
		if err := rq.limiter.Wait(ctx); err != nil {
			return err
		}
		status, err := rq.do(ctx)
		if err != nil {
			return err
		}
		logger.Debug("Received HTTP response", "status", status, "attempt", i+1)
		if !rq.accepts(status) {
			return fmt.Errorf("unexpected status %d from %s %s", status, rq.input.Method, rq.input.URL)
		}
	}
	logger.Info("HTTP requests completed", "count", rq.input.Repeat)
	return nil
}

func (rq *requester) do(ctx context.Context) (int, error) {
	var body io.Reader
	if rq.input.Body != "" {
		body = strings.NewReader(rq.input.Body)
	}
	req, err := http.NewRequestWithContext(ctx, rq.input.Method, rq.input.URL, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range rq.input.Headers {
		req.Header.Set(k, v)
	}

	resp, err := rq.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return 0, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, nil
}

func (rq *requester) accepts(status int) bool {
	if rq.input.ExpectStatus != 0 {
		return status == rq.input.ExpectStatus
	}
	return status >= 200 && status < 300
}
