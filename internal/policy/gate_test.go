package policy

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	gate, err := NewGate(t.TempDir())
	if err != nil {
		t.Fatalf("NewGate error: %v", err)
	}
	return gate
}

var allIntents = []Intent{IntentRead, IntentWriteNew, IntentWriteOverwrite, IntentWriteIdempotent}

func TestNewGate_RejectsRelativeRoot(t *testing.T) {
	if _, err := NewGate("relative/dir"); err == nil {
		t.Fatal("expected error for relative root")
	}
	if _, err := NewGate("  "); err == nil {
		t.Fatal("expected error for empty root")
	}
}

func TestNewGate_CreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "sandbox")
	gate, err := NewGate(root)
	if err != nil {
		t.Fatalf("NewGate error: %v", err)
	}
	info, err := os.Stat(gate.Root())
	if err != nil || !info.IsDir() {
		t.Fatalf("expected sandbox root to be created, stat err=%v", err)
	}
}

func TestCheck_DeniesTraversalOutsideRoot(t *testing.T) {
	gate := newTestGate(t)
	path := gate.Root() + "/../etc/passwd"

	for _, intent := range allIntents {
		d := gate.Check(path, intent)
		if d.Allowed {
			t.Fatalf("expected deny for %s with intent %s", path, intent)
		}
		if d.Rule != RuleContainment {
			t.Fatalf("expected containment rule, got %q (%s)", d.Rule, d.Reason)
		}
	}
}

func TestCheck_DeniesAbsolutePathOutsideRoot(t *testing.T) {
	gate := newTestGate(t)
	outside := t.TempDir()

	for _, intent := range allIntents {
		if d := gate.Check(filepath.Join(outside, "x.txt"), intent); d.Allowed {
			t.Fatalf("expected deny for intent %s", intent)
		}
	}
}

func TestCheck_DeniesSiblingWithSharedPrefix(t *testing.T) {
	parent := t.TempDir()
	gate, err := NewGate(filepath.Join(parent, "data"))
	if err != nil {
		t.Fatalf("NewGate error: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(parent, "data-evil"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	d := gate.Check(filepath.Join(parent, "data-evil", "out.txt"), IntentWriteNew)
	if d.Allowed || d.Rule != RuleContainment {
		t.Fatalf("expected containment deny for sibling directory, got %+v", d)
	}
}

func TestCheck_DeniesSymlinkEscape(t *testing.T) {
	gate := newTestGate(t)
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("s"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	link := filepath.Join(gate.Root(), "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	for _, p := range []string{
		filepath.Join(link, "secret.txt"),
		filepath.Join(link, "new.txt"),
		filepath.Join(link, "a", "b", "c.txt"),
	} {
		for _, intent := range allIntents {
			d := gate.Check(p, intent)
			if d.Allowed {
				t.Fatalf("expected deny for %s (%s)", p, intent)
			}
			if d.Rule != RuleContainment {
				t.Fatalf("expected containment rule for %s, got %q", p, d.Rule)
			}
		}
	}
}

func TestCheck_DeniesDanglingSymlinkEscape(t *testing.T) {
	gate := newTestGate(t)
	target := filepath.Join(t.TempDir(), "not-yet")
	link := filepath.Join(gate.Root(), "out.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	d := gate.Check(link, IntentWriteOverwrite)
	if d.Allowed || d.Rule != RuleContainment {
		t.Fatalf("expected containment deny for dangling link, got %+v", d)
	}
}

func TestCheck_AllowsSymlinkInsideRoot(t *testing.T) {
	gate := newTestGate(t)
	real := filepath.Join(gate.Root(), "real")
	if err := os.MkdirAll(real, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	link := filepath.Join(gate.Root(), "alias")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	d := gate.Check(filepath.Join(link, "new.txt"), IntentWriteNew)
	if !d.Allowed {
		t.Fatalf("expected allow, got %+v", d)
	}
	if want := filepath.Join(real, "new.txt"); d.Path != want {
		t.Fatalf("expected resolved path %q, got %q", want, d.Path)
	}
}

func TestCheck_WriteNewExistenceRule(t *testing.T) {
	gate := newTestGate(t)
	path := filepath.Join(gate.Root(), "sub", "out.json")

	if d := gate.Check(path, IntentWriteNew); !d.Allowed {
		t.Fatalf("expected allow for missing path, got %+v", d)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	d := gate.Check(path, IntentWriteNew)
	if d.Allowed {
		t.Fatal("expected deny for existing path")
	}
	if d.Rule != RuleExistence {
		t.Fatalf("expected existence rule, got %q", d.Rule)
	}

	if d := gate.Check(filepath.Dir(path), IntentWriteNew); d.Allowed {
		t.Fatal("expected deny for existing directory")
	}
}

func TestCheck_WriteOverwriteAllowsExisting(t *testing.T) {
	gate := newTestGate(t)
	path := filepath.Join(gate.Root(), "existing.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if d := gate.Check(path, IntentWriteOverwrite); !d.Allowed {
		t.Fatalf("expected allow, got %+v", d)
	}
	if d := gate.Check(gate.Root(), IntentWriteOverwrite); !d.Allowed {
		t.Fatalf("expected allow for root itself, got %+v", d)
	}
}

func TestCheck_ReadDoesNotEvaluateExistence(t *testing.T) {
	gate := newTestGate(t)
	d := gate.Check(filepath.Join(gate.Root(), "missing.db"), IntentRead)
	if !d.Allowed {
		t.Fatalf("expected read of missing in-sandbox path to pass the gate, got %+v", d)
	}
}

func TestCheck_WriteIdempotent(t *testing.T) {
	gate := newTestGate(t)
	repo := filepath.Join(gate.Root(), "repo")

	if d := gate.Check(repo, IntentWriteIdempotent); !d.Allowed {
		t.Fatalf("expected allow for absent repo, got %+v", d)
	}
	if err := os.MkdirAll(repo, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if d := gate.Check(repo, IntentWriteIdempotent); !d.Allowed {
		t.Fatalf("expected allow for existing repo dir, got %+v", d)
	}

	file := filepath.Join(gate.Root(), "plain")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if d := gate.Check(file, IntentWriteIdempotent); d.Allowed || d.Rule != RuleExistence {
		t.Fatalf("expected existence deny for regular file, got %+v", d)
	}
}

func TestCheck_RelativePathIsSandboxRelative(t *testing.T) {
	gate := newTestGate(t)
	d := gate.Check("reports/out.txt", IntentWriteNew)
	if !d.Allowed {
		t.Fatalf("expected allow, got %+v", d)
	}
	if want := filepath.Join(gate.Root(), "reports", "out.txt"); d.Path != want {
		t.Fatalf("expected %q, got %q", want, d.Path)
	}

	if d := gate.Check("../escape.txt", IntentWriteNew); d.Allowed {
		t.Fatal("expected relative traversal to be denied")
	}
}

func TestCheck_InvalidInputs(t *testing.T) {
	gate := newTestGate(t)

	if d := gate.Check("", IntentRead); d.Allowed || d.Rule != RuleInvalidPath {
		t.Fatalf("expected invalid_path for empty path, got %+v", d)
	}
	if d := gate.Check(filepath.Join(gate.Root(), "x"), Intent("delete")); d.Allowed || d.Rule != RuleUnknownIntent {
		t.Fatalf("expected unknown_intent, got %+v", d)
	}
}

func TestCheck_IsDeterministic(t *testing.T) {
	gate := newTestGate(t)
	path := filepath.Join(gate.Root(), "a.txt")

	first := gate.Check(path, IntentWriteNew)
	second := gate.Check(path, IntentWriteNew)
	if first != second {
		t.Fatalf("expected identical decisions, got %+v and %+v", first, second)
	}
}

func TestParseIntent(t *testing.T) {
	cases := map[string]Intent{
		"read":               IntentRead,
		"write-new":          IntentWriteNew,
		"WriteNew":           IntentWriteNew,
		"write_overwrite":    IntentWriteOverwrite,
		" WRITE-IDEMPOTENT ": IntentWriteIdempotent,
	}
	for raw, want := range cases {
		got, err := ParseIntent(raw)
		if err != nil {
			t.Fatalf("ParseIntent(%q) error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseIntent(%q) = %q, want %q", raw, got, want)
		}
	}
	if _, err := ParseIntent("delete"); err == nil {
		t.Fatal("expected error for unknown intent")
	}
}

func TestWriteExclusive_OnlyOneConcurrentWriterWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "race.txt")

	var wins, lost atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WriteExclusive(path, []byte("payload"))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrExists):
				lost.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one writer to succeed, got %d", wins.Load())
	}
	if lost.Load() != 15 {
		t.Fatalf("expected 15 ErrExists results, got %d", lost.Load())
	}
}

func TestWriteExclusive_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "out.txt")
	if err := WriteExclusive(path, []byte("hi")); err != nil {
		t.Fatalf("WriteExclusive error: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(raw) != "hi" {
		t.Fatalf("unexpected content %q", raw)
	}
}
