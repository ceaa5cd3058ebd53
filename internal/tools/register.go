package tools

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MEKXH/taskgate/internal/config"
	"github.com/MEKXH/taskgate/internal/dispatch"
	"github.com/MEKXH/taskgate/internal/proc"
	"github.com/MEKXH/taskgate/internal/query"
	"github.com/MEKXH/taskgate/internal/voice"
)

const defaultHTTPTimeout = 30 * time.Second

// Deps are the collaborators the default actions run against.
type Deps struct {
	HTTP          HTTPDoer
	Git           GitRunner
	RepoDir       string
	Engines       query.Engines
	Extractor     TextExtractor
	Markdown      MarkdownRenderer
	Transcriber   Transcriber
	FetchMaxBytes int64
}

// DepsFromConfig builds production collaborators from configuration. A missing
// transcription key leaves Transcriber nil; transcribe-audio then fails at call
// time instead of at startup.
func DepsFromConfig(cfg *config.Config) Deps {
	actions := cfg.Actions
	timeout := time.Duration(actions.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	runner := proc.ExecRunner{}

	deps := Deps{
		HTTP:    &http.Client{Timeout: timeout},
		Git:     NewGitCLI(actions.Git.Binary, runner),
		RepoDir: actions.Git.RepoDir,
		Engines: query.Engines{
			query.KindSQLite: query.SQLite{},
			query.KindDuckDB: query.DuckDB{Binary: actions.DuckDB.Binary, Runner: runner},
		},
		Extractor:     NewTextExtractor(),
		Markdown:      NewMarkdownRenderer(),
		FetchMaxBytes: int64(actions.FetchMaxBytes),
	}

	tc := actions.Transcription
	if tc.APIKey != "" {
		t, err := voice.NewClient(voice.Config{
			APIKey:  tc.APIKey,
			BaseURL: tc.BaseURL,
			Model:   tc.Model,
			Timeout: timeout,
		})
		if err != nil {
			slog.Warn("transcription disabled", "error", err)
		} else {
			deps.Transcriber = t
		}
	}
	return deps
}

// Specs returns every default action wired to deps.
func Specs(deps Deps) []*dispatch.Spec {
	return []*dispatch.Spec{
		NewFetchAndSave(deps.HTTP, deps.FetchMaxBytes),
		NewCloneAndCommit(deps.Git, deps.RepoDir),
		NewRunSQLQuery(deps.Engines),
		NewScrapePage(deps.HTTP, deps.Extractor, deps.FetchMaxBytes),
		NewResizeImage(),
		NewTranscribeAudio(deps.Transcriber),
		NewRenderMarkdown(deps.Markdown),
		NewFilterTabularData(),
	}
}

// RegisterDefaults registers every default action.
func RegisterDefaults(reg *dispatch.Registry, deps Deps) error {
	if deps.HTTP == nil {
		deps.HTTP = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if deps.Git == nil {
		deps.Git = NewGitCLI("", nil)
	}
	if deps.Extractor == nil {
		deps.Extractor = NewTextExtractor()
	}
	for _, spec := range Specs(deps) {
		if err := reg.Register(spec); err != nil {
			return fmt.Errorf("register %s: %w", spec.Name, err)
		}
	}
	return nil
}
