package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MEKXH/taskgate/internal/metrics"
	"github.com/MEKXH/taskgate/internal/policy"
	"github.com/cloudwego/eino/schema"
)

type spyEffect struct {
	calls atomic.Int32
	last  *Call
	fn    func(ctx context.Context, call *Call) (any, error)
}

func (s *spyEffect) perform(ctx context.Context, call *Call) (any, error) {
	s.calls.Add(1)
	s.last = call
	if s.fn != nil {
		return s.fn(ctx, call)
	}
	return map[string]any{"ok": true}, nil
}

func copySpec(spy *spyEffect) *Spec {
	return &Spec{
		Name: "copy",
		Desc: "Copy a file",
		Params: map[string]*schema.ParameterInfo{
			"src":   {Type: schema.String, Desc: "source", Required: true},
			"dst":   {Type: schema.String, Desc: "destination", Required: true},
			"limit": {Type: schema.Integer, Desc: "byte limit"},
			"mode":  {Type: schema.String, Enum: []string{"fast", "safe"}},
		},
		Paths: []PathParam{
			{Param: "src", Intent: policy.IntentRead},
			{Param: "dst", Intent: policy.IntentWriteNew},
		},
		Perform: spy.perform,
	}
}

func newTestDispatcher(t *testing.T, specs ...*Spec) (*Dispatcher, string) {
	t.Helper()
	gate, err := policy.NewGate(t.TempDir())
	if err != nil {
		t.Fatalf("NewGate error: %v", err)
	}
	reg := NewRegistry()
	for _, spec := range specs {
		if err := reg.Register(spec); err != nil {
			t.Fatalf("Register error: %v", err)
		}
	}
	reg.Freeze()
	return NewDispatcher(reg, gate, WithMetrics(metrics.NewRuntimeMetrics())), gate.Root()
}

func expectKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	de, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if de.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, de.Kind, err)
	}
	return de
}

func TestDispatch_UnknownAction(t *testing.T) {
	d, _ := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), Request{Name: "nope"})
	expectKind(t, err, KindUnknownAction)
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatal("expected errors.Is to match ErrUnknownAction")
	}
}

func TestDispatch_InvalidParameters(t *testing.T) {
	spy := &spyEffect{}
	d, _ := newTestDispatcher(t, copySpec(spy))

	cases := []struct {
		name   string
		params map[string]any
		param  string
	}{
		{"missing required", map[string]any{"src": "a"}, "dst"},
		{"blank required", map[string]any{"src": "a", "dst": "  "}, "dst"},
		{"wrong type", map[string]any{"src": 12.0, "dst": "b"}, "src"},
		{"non integer", map[string]any{"src": "a", "dst": "b", "limit": 1.5}, "limit"},
		{"enum", map[string]any{"src": "a", "dst": "b", "mode": "slow"}, "mode"},
		{"unknown param", map[string]any{"src": "a", "dst": "b", "extra": true}, "extra"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Dispatch(context.Background(), Request{Name: "copy", Params: tc.params})
			de := expectKind(t, err, KindInvalidParameters)
			if de.Param != tc.param {
				t.Fatalf("expected param %q, got %q", tc.param, de.Param)
			}
		})
	}
	if spy.calls.Load() != 0 {
		t.Fatalf("expected effect not to run, ran %d times", spy.calls.Load())
	}
}

func TestDispatch_PolicyDenialNeverInvokesEffect(t *testing.T) {
	spy := &spyEffect{}
	d, root := newTestDispatcher(t, copySpec(spy))

	existing := filepath.Join(root, "exists.txt")
	if err := os.WriteFile(existing, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cases := []struct {
		name string
		src  string
		dst  string
		rule policy.Rule
	}{
		{"read traversal", root + "/../etc/passwd", filepath.Join(root, "out.txt"), policy.RuleContainment},
		{"write outside", filepath.Join(root, "in.txt"), "/etc/evil.txt", policy.RuleContainment},
		{"overwrite existing", filepath.Join(root, "in.txt"), existing, policy.RuleExistence},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Dispatch(context.Background(), Request{
				Name:   "copy",
				Params: map[string]any{"src": tc.src, "dst": tc.dst},
			})
			de := expectKind(t, err, KindPolicyViolation)
			if de.Rule != tc.rule {
				t.Fatalf("expected rule %q, got %q", tc.rule, de.Rule)
			}
			if !strings.Contains(err.Error(), string(tc.rule)) {
				t.Fatalf("expected rule named in message, got %v", err)
			}
		})
	}
	if spy.calls.Load() != 0 {
		t.Fatalf("expected zero effect invocations, got %d", spy.calls.Load())
	}
}

func TestDispatch_PassesResolvedPaths(t *testing.T) {
	spy := &spyEffect{}
	d, root := newTestDispatcher(t, copySpec(spy))

	res, err := d.Dispatch(context.Background(), Request{
		Name:   "copy",
		Params: map[string]any{"src": "in.txt", "dst": "sub/../out.txt", "limit": 10.0},
	})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if res.Action != "copy" {
		t.Fatalf("unexpected result action %q", res.Action)
	}
	if spy.calls.Load() != 1 {
		t.Fatalf("expected one invocation, got %d", spy.calls.Load())
	}
	if got, want := spy.last.Path("src"), filepath.Join(root, "in.txt"); got != want {
		t.Fatalf("src path = %q, want %q", got, want)
	}
	if got, want := spy.last.Path("dst"), filepath.Join(root, "out.txt"); got != want {
		t.Fatalf("dst path = %q, want %q", got, want)
	}
	if n, ok := spy.last.Params.Int("limit"); !ok || n != 10 {
		t.Fatalf("expected limit 10, got %d (%v)", n, ok)
	}
}

func TestDispatch_EffectErrorBecomesActionError(t *testing.T) {
	spy := &spyEffect{fn: func(ctx context.Context, call *Call) (any, error) {
		return nil, fmt.Errorf("codec exploded")
	}}
	d, _ := newTestDispatcher(t, copySpec(spy))

	_, err := d.Dispatch(context.Background(), Request{
		Name:   "copy",
		Params: map[string]any{"src": "a", "dst": "b"},
	})
	de := expectKind(t, err, KindActionError)
	if de.Action != "copy" {
		t.Fatalf("expected action name attached, got %q", de.Action)
	}
	if !strings.Contains(err.Error(), "codec exploded") {
		t.Fatalf("expected cause in message, got %v", err)
	}
	if de.Timeout {
		t.Fatal("did not expect timeout flag")
	}
}

func TestDispatch_NamedStepFailure(t *testing.T) {
	spy := &spyEffect{fn: func(ctx context.Context, call *Call) (any, error) {
		return nil, Failf(errors.New("exit status 1"), "commit failed")
	}}
	d, _ := newTestDispatcher(t, copySpec(spy))

	_, err := d.Dispatch(context.Background(), Request{
		Name:   "copy",
		Params: map[string]any{"src": "a", "dst": "b"},
	})
	de := expectKind(t, err, KindActionError)
	if de.Message != "commit failed" || de.Action != "copy" {
		t.Fatalf("unexpected error fields: %+v", de)
	}
}

func TestDispatch_TimeoutBecomesActionError(t *testing.T) {
	spy := &spyEffect{fn: func(ctx context.Context, call *Call) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	gate, err := policy.NewGate(t.TempDir())
	if err != nil {
		t.Fatalf("NewGate error: %v", err)
	}
	reg := NewRegistry()
	if err := reg.Register(copySpec(spy)); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	d := NewDispatcher(reg, gate, WithTimeout(20*time.Millisecond))

	_, err = d.Dispatch(context.Background(), Request{
		Name:   "copy",
		Params: map[string]any{"src": "a", "dst": "b"},
	})
	de := expectKind(t, err, KindActionError)
	if !de.Timeout {
		t.Fatalf("expected timeout flag, got %+v", de)
	}
}

func TestDispatch_ExclusiveCreateRaceIsPolicyViolation(t *testing.T) {
	spy := &spyEffect{}
	d, root := newTestDispatcher(t, copySpec(spy))

	dst := filepath.Join(root, "racy.txt")
	spy.fn = func(ctx context.Context, call *Call) (any, error) {
		if err := os.WriteFile(dst, []byte("winner"), 0o644); err != nil {
			return nil, err
		}
		return nil, policy.WriteExclusive(call.Path("dst"), []byte("late"))
	}

	_, err := d.Dispatch(context.Background(), Request{
		Name:   "copy",
		Params: map[string]any{"src": "a", "dst": dst},
	})
	de := expectKind(t, err, KindPolicyViolation)
	if de.Rule != policy.RuleExistence {
		t.Fatalf("expected existence rule, got %q", de.Rule)
	}
	raw, _ := os.ReadFile(dst)
	if string(raw) != "winner" {
		t.Fatalf("expected first writer's content to survive, got %q", raw)
	}
}

func TestDispatch_FixedPathAndValidateHook(t *testing.T) {
	spy := &spyEffect{}
	spec := &Spec{
		Name: "clone",
		Params: map[string]*schema.ParameterInfo{
			"url": {Type: schema.String, Required: true},
		},
		Paths: []PathParam{{Param: "repo", Intent: policy.IntentWriteIdempotent, Fixed: "repo"}},
		Validate: func(p Params) error {
			if !strings.HasPrefix(p.String("url"), "https://") {
				return errors.New("url must use https")
			}
			return nil
		},
		Perform: spy.perform,
	}
	d, root := newTestDispatcher(t, spec)

	_, err := d.Dispatch(context.Background(), Request{Name: "clone", Params: map[string]any{"url": "ftp://x"}})
	expectKind(t, err, KindInvalidParameters)

	if _, err := d.Dispatch(context.Background(), Request{Name: "clone", Params: map[string]any{"url": "https://x"}}); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if got, want := spy.last.Path("repo"), filepath.Join(root, "repo"); got != want {
		t.Fatalf("fixed path = %q, want %q", got, want)
	}

	_, err = d.Dispatch(context.Background(), Request{Name: "clone", Params: map[string]any{"url": "https://x", "repo": "/etc"}})
	expectKind(t, err, KindInvalidParameters)
}

func TestDispatch_RecordsMetrics(t *testing.T) {
	spy := &spyEffect{}
	gate, err := policy.NewGate(t.TempDir())
	if err != nil {
		t.Fatalf("NewGate error: %v", err)
	}
	reg := NewRegistry()
	if err := reg.Register(copySpec(spy)); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	recorder := metrics.NewRuntimeMetrics()
	d := NewDispatcher(reg, gate, WithMetrics(recorder))

	_, _ = d.Dispatch(context.Background(), Request{Name: "copy", Params: map[string]any{"src": "a", "dst": "b"}})
	_, _ = d.Dispatch(context.Background(), Request{Name: "missing"})

	snap := recorder.Snapshot()
	if snap.Dispatch.Total != 2 || snap.Dispatch.Errors != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap.Dispatch)
	}
	if snap.Dispatch.ErrorsByKind[string(KindUnknownAction)] != 1 {
		t.Fatalf("expected unknown_action counted, got %+v", snap.Dispatch.ErrorsByKind)
	}
}

func TestRegistry_RejectsInconsistentSpecs(t *testing.T) {
	noop := func(ctx context.Context, call *Call) (any, error) { return nil, nil }
	cases := map[string]*Spec{
		"no name":      {Perform: noop},
		"no effect":    {Name: "x"},
		"bad intent":   {Name: "x", Perform: noop, Params: map[string]*schema.ParameterInfo{"p": {Type: schema.String}}, Paths: []PathParam{{Param: "p", Intent: "delete"}}},
		"undeclared":   {Name: "x", Perform: noop, Paths: []PathParam{{Param: "p", Intent: policy.IntentRead}}},
		"non string":   {Name: "x", Perform: noop, Params: map[string]*schema.ParameterInfo{"p": {Type: schema.Integer}}, Paths: []PathParam{{Param: "p", Intent: policy.IntentRead}}},
		"fixed shadow": {Name: "x", Perform: noop, Params: map[string]*schema.ParameterInfo{"p": {Type: schema.String}}, Paths: []PathParam{{Param: "p", Intent: policy.IntentRead, Fixed: "a"}}},
	}
	for name, spec := range cases {
		if err := NewRegistry().Register(spec); err == nil {
			t.Fatalf("%s: expected Register error", name)
		}
	}
}

func TestRegistry_DuplicateAndFrozen(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(copySpec(&spyEffect{})); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := reg.Register(copySpec(&spyEffect{})); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	reg.Freeze()
	other := copySpec(&spyEffect{})
	other.Name = "other"
	if err := reg.Register(other); err == nil {
		t.Fatal("expected frozen registry to reject registration")
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "copy" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestTool_InvokableRunGoesThroughDispatch(t *testing.T) {
	spy := &spyEffect{fn: func(ctx context.Context, call *Call) (any, error) {
		return map[string]any{"dst": call.Path("dst")}, nil
	}}
	d, root := newTestDispatcher(t, copySpec(spy))

	tl, ok := d.Tool("copy")
	if !ok {
		t.Fatal("expected copy tool")
	}
	info, err := tl.Info(context.Background())
	if err != nil || info.Name != "copy" {
		t.Fatalf("unexpected tool info %+v, err=%v", info, err)
	}

	out, err := tl.InvokableRun(context.Background(), `{"src":"a.txt","dst":"b.txt"}`)
	if err != nil {
		t.Fatalf("InvokableRun error: %v", err)
	}
	if !strings.Contains(out, filepath.Join(root, "b.txt")) {
		t.Fatalf("unexpected tool output %q", out)
	}

	if _, err := tl.InvokableRun(context.Background(), `{"src":"a.txt","dst":"/etc/passwd"}`); !errors.Is(err, ErrPolicyViolation) {
		t.Fatalf("expected policy violation through tool, got %v", err)
	}
	if _, err := tl.InvokableRun(context.Background(), `not json`); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected invalid parameters for bad json, got %v", err)
	}
	if spy.calls.Load() != 1 {
		t.Fatalf("expected exactly one effect run, got %d", spy.calls.Load())
	}
}

func TestSpec_Describe(t *testing.T) {
	info := copySpec(&spyEffect{}).Describe()
	if len(info.Params) != 4 || info.Params[0].Name != "dst" {
		t.Fatalf("expected sorted params, got %+v", info.Params)
	}
	if len(info.Paths) != 2 || info.Paths[1].Intent != string(policy.IntentWriteNew) {
		t.Fatalf("unexpected paths %+v", info.Paths)
	}
}

func TestFormatValue(t *testing.T) {
	cases := map[any]string{
		"x":    "x",
		42.0:   "42",
		2.5:    "2.5",
		true:   "true",
		nil:    "",
		int(7): "7",
	}
	for in, want := range cases {
		if got := FormatValue(in); got != want {
			t.Fatalf("FormatValue(%v) = %q, want %q", in, got, want)
		}
	}
}
