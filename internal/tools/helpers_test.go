package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/MEKXH/taskgate/internal/dispatch"
	"github.com/MEKXH/taskgate/internal/policy"
)

func newTestDispatcher(t *testing.T, specs ...*dispatch.Spec) (*dispatch.Dispatcher, string) {
	t.Helper()
	gate, err := policy.NewGate(t.TempDir())
	if err != nil {
		t.Fatalf("NewGate error: %v", err)
	}
	reg := dispatch.NewRegistry()
	for _, spec := range specs {
		if err := reg.Register(spec); err != nil {
			t.Fatalf("Register error: %v", err)
		}
	}
	reg.Freeze()
	return dispatch.NewDispatcher(reg, gate), gate.Root()
}

func call(d *dispatch.Dispatcher, name string, params map[string]any) (*dispatch.Result, error) {
	return d.Dispatch(context.Background(), dispatch.Request{Name: name, Params: params})
}

func expectKind(t *testing.T, err error, kind dispatch.Kind) *dispatch.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	de, ok := dispatch.AsError(err)
	if !ok {
		t.Fatalf("expected *dispatch.Error, got %T: %v", err, err)
	}
	if de.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, de.Kind, err)
	}
	return de
}

func writeFile(t *testing.T, root, rel string, data []byte) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return path
}

func readFileString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); !os.IsNotExist(err) {
		t.Fatalf("expected %s not to exist, stat err=%v", path, err)
	}
}
