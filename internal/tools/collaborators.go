package tools

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/MEKXH/taskgate/internal/proc"
	"github.com/MEKXH/taskgate/internal/voice"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// HTTPDoer sends outbound HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// GitRunner runs one git subcommand in dir and returns its stdout.
type GitRunner interface {
	Git(ctx context.Context, dir string, args ...string) (string, error)
}

// TextExtractor turns an HTML document into readable text.
type TextExtractor interface {
	ExtractText(r io.Reader) (string, error)
}

// MarkdownRenderer converts markdown source to HTML.
type MarkdownRenderer interface {
	Render(src []byte) ([]byte, error)
}

// Transcriber converts audio to text.
type Transcriber = voice.Transcriber

type gitCLI struct {
	binary string
	runner proc.Runner
}

// NewGitCLI runs git through the given binary.
func NewGitCLI(binary string, runner proc.Runner) GitRunner {
	if binary == "" {
		binary = "git"
	}
	if runner == nil {
		runner = proc.ExecRunner{}
	}
	return &gitCLI{binary: binary, runner: runner}
}

func (g *gitCLI) Git(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := g.runner.Run(ctx, dir, g.binary, args...)
	if err != nil {
		return out.Stdout, err
	}
	return out.Stdout, nil
}

type goldmarkRenderer struct {
	md goldmark.Markdown
}

// NewMarkdownRenderer returns a GitHub-flavored markdown renderer.
func NewMarkdownRenderer() MarkdownRenderer {
	return &goldmarkRenderer{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

func (g *goldmarkRenderer) Render(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := g.md.Convert(src, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
