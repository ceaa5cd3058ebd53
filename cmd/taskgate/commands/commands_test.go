package commands

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/MEKXH/taskgate/internal/config"
)

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}

	os.Stdout = w
	fn()
	_ = w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	_ = r.Close()

	return buf.String()
}

// useTempHome points HOME and the config path at a temp dir and returns the
// sandbox root the default config will use.
func useTempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	config.SetConfigPath("")
	t.Cleanup(func() { config.SetConfigPath("") })
	return filepath.Join(home, ".taskgate", "sandbox")
}

func testServices(t *testing.T) *services {
	t.Helper()
	root := useTempHome(t)
	cfg := config.DefaultConfig()
	cfg.Sandbox.Root = root
	rt, err := buildServices(cfg)
	if err != nil {
		t.Fatalf("buildServices: %v", err)
	}
	return rt
}
