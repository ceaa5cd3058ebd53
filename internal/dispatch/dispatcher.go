package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MEKXH/taskgate/internal/metrics"
	"github.com/MEKXH/taskgate/internal/policy"
)

// Dispatcher validates a request, checks every declared path through the
// gate, and only then runs the action's effect.
type Dispatcher struct {
	registry *Registry
	gate     *policy.Gate
	timeout  time.Duration
	metrics  *metrics.RuntimeMetrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds each effect when the caller's context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		disp.timeout = d
	}
}

// WithMetrics records every dispatch outcome.
func WithMetrics(m *metrics.RuntimeMetrics) Option {
	return func(disp *Dispatcher) {
		disp.metrics = m
	}
}

// NewDispatcher creates a dispatcher over a registry and a gate.
func NewDispatcher(registry *Registry, gate *policy.Gate, opts ...Option) *Dispatcher {
	d := &Dispatcher{registry: registry, gate: gate}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the action registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Gate returns the policy gate.
func (d *Dispatcher) Gate() *policy.Gate {
	return d.gate
}

// Dispatch runs one request. Failures are always *Error.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := d.dispatch(ctx, req)
	duration := time.Since(start)

	meta := InvocationFromContext(ctx)
	logAttrs := []any{
		"action", req.Name,
		"request_id", meta.RequestID,
		"source", meta.Source,
		"duration_ms", duration.Milliseconds(),
		"success", err == nil,
	}
	kind := KindOf(err)
	if err != nil {
		logAttrs = append(logAttrs, "kind", string(kind), "error", err)
	}
	if d.metrics != nil {
		snap := d.metrics.RecordDispatch(metrics.Outcome{
			Action:   req.Name,
			Duration: duration,
			Kind:     string(kind),
			Err:      err,
		})
		logAttrs = append(logAttrs,
			"dispatch_total", snap.Dispatch.Total,
			"dispatch_error_ratio", snap.Dispatch.ErrorRatio(),
		)
	}
	if err != nil && kind == KindActionError {
		slog.Warn("action failed", logAttrs...)
	} else {
		slog.Info("action dispatched", logAttrs...)
	}
	return res, err
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (*Result, error) {
	name := strings.TrimSpace(req.Name)
	spec, ok := d.registry.Get(name)
	if !ok {
		return nil, &Error{
			Kind:    KindUnknownAction,
			Action:  name,
			Message: fmt.Sprintf("unknown action %q", name),
		}
	}

	params := Params(req.Params)
	if params == nil {
		params = Params{}
	}
	if err := validateParams(spec, params); err != nil {
		return nil, err
	}
	if spec.Validate != nil {
		if err := spec.Validate(params); err != nil {
			return nil, invalidParams(spec.Name, "", "%v", err)
		}
	}

	paths := make(map[string]string, len(spec.Paths))
	for _, pp := range spec.Paths {
		raw := pp.Fixed
		if raw == "" {
			raw = params.String(pp.Param)
		}
		if raw == "" {
			if info := spec.Params[pp.Param]; info != nil && !info.Required {
				continue
			}
			return nil, invalidParams(spec.Name, pp.Param, "missing required path %q", pp.Param)
		}
		decision := d.gate.Check(raw, pp.Intent)
		if !decision.Allowed {
			if decision.Path == "" {
				decision.Path = raw
			}
			return nil, policyViolation(spec.Name, pp.Param, decision)
		}
		paths[pp.Param] = decision.Path
	}

	if d.timeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}
	}

	payload, err := spec.Perform(ctx, &Call{Action: spec.Name, Params: params, Paths: paths})
	if err != nil {
		return nil, classifyEffectError(ctx, spec.Name, err)
	}
	return &Result{Action: spec.Name, Payload: payload}, nil
}

func classifyEffectError(ctx context.Context, action string, err error) *Error {
	if errors.Is(err, policy.ErrExists) {
		return &Error{
			Kind:    KindPolicyViolation,
			Action:  action,
			Rule:    policy.RuleExistence,
			Message: "target was created concurrently and may not be overwritten",
			Cause:   err,
		}
	}

	timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)

	if de, ok := AsError(err); ok {
		out := *de
		if out.Kind == "" {
			out.Kind = KindActionError
		}
		if out.Action == "" {
			out.Action = action
		}
		out.Timeout = out.Timeout || timedOut
		return &out
	}

	out := &Error{Kind: KindActionError, Action: action, Cause: err, Timeout: timedOut}
	if timedOut {
		out.Message = "timed out"
	}
	return out
}

// Describe lists every registered action in name order.
func (d *Dispatcher) Describe() []Info {
	specs := d.registry.List()
	out := make([]Info, 0, len(specs))
	for _, spec := range specs {
		out = append(out, spec.Describe())
	}
	return out
}
