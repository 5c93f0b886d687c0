package socketio

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/vk/jobgrid/internal/ctxlog"
	"github.com/vk/jobgrid/internal/grid"
	"github.com/vk/jobgrid/internal/registry"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

const defaultTimeout = 10 * time.Second

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the socketio kind.
type Input struct {
	URL                string            `hcl:"url" validate:"required,url"`
	Namespace          string            `hcl:"namespace,optional"`
	OnEvent            string            `hcl:"on_event" validate:"required"`
	EmitEvent          string            `hcl:"emit_event,optional"`
	EmitData           map[string]string `hcl:"emit_data,optional"`
	Timeout            string            `hcl:"timeout,optional"`
	InsecureSkipVerify bool              `hcl:"insecure_skip_verify,optional"`
}

// Register registers the kind with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterKind("socketio", build)
}

// client is the validated form of Input.
type client struct {
	name    string
	input   Input
	baseURL string
	path    string
	timeout time.Duration
}

func build(_ context.Context, spec *grid.JobSpec) (*registry.Runnable, error) {
	var input Input
	if err := spec.Decode(&input); err != nil {
		return nil, err
	}
	c, err := newClient(spec.Name, input)
	if err != nil {
		return nil, err
	}
	return &registry.Runnable{Action: c.run}, nil
}

func newClient(name string, input Input) (*client, error) {
	parsedURL, err := url.Parse(input.URL)
	if err != nil {
		return nil, fmt.Errorf("job %q: failed to parse URL: %w", name, err)
	}
	if input.Namespace == "" {
		input.Namespace = "/"
	}
	timeout := defaultTimeout
	if input.Timeout != "" {
		if timeout, err = time.ParseDuration(input.Timeout); err != nil {
			return nil, fmt.Errorf("job %q: invalid timeout: %w", name, err)
		}
	}
	return &client{
		name:    name,
		input:   input,
		baseURL: fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host),
		path:    parsedURL.Path,
		timeout: timeout,
	}, nil
}

// result passes the outcome of the exchange through the done channel.
type result struct {
	data any
	err  error
}

// run connects, optionally emits an event, and returns once OnEvent is
// received, the connection fails, the timeout expires or ctx is done.
func (c *client) run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("job", c.name, "url", c.input.URL, "onEvent", c.input.OnEvent, "emitEvent", c.input.EmitEvent)
	logger.Debug("Socket.IO exchange started")
	defer logger.Debug("Socket.IO exchange finished")

	var isConnected atomic.Bool
	done := make(chan result, 1)
	report := func(r result) {
		select {
		case done <- r:
		default:
		}
	}

	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	opts := socket.DefaultOptions()
	if c.path != "" {
		opts.SetPath(c.path)
	}
	if c.input.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(c.baseURL, opts)
	io := manager.Socket(c.input.Namespace, opts)
	defer func() {
		logger.Debug("Disconnecting socket client")
		io.Disconnect()
	}()

	io.On(types.EventName("connect"), func(...any) {
		isConnected.Store(true)
		logger.Info("Successfully connected", "namespace", c.input.Namespace, "sid", io.Id())
		if c.input.EmitEvent != "" {
			logger.Info("Emitting event", "event", c.input.EmitEvent, "data", c.input.EmitData)
			io.Emit(c.input.EmitEvent, c.input.EmitData)
		}
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connection failed")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = fmt.Errorf("connection failed: %w", e)
			}
		}
		report(result{err: err})
	})
	io.On(types.EventName(c.input.OnEvent), func(data ...any) {
		var payload any
		if len(data) > 0 {
			payload = data[0]
		}
		report(result{data: payload})
	})

	io.Connect()

	select {
	case <-opCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isConnected.Load() {
			return fmt.Errorf("timed out after connecting while waiting for event '%s'", c.input.OnEvent)
		}
		return fmt.Errorf("timed out while waiting for initial connection")
	case res := <-done:
		if res.err != nil {
			return res.err
		}
		logger.Info("Received event", "event", c.input.OnEvent, "data", res.data)
		return nil
	}
}
