// Package tools implements the actions the dispatcher can run. Each action is
// a dispatch.Spec whose declared paths are checked by the policy gate before
// the effect runs.
package tools

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/MEKXH/taskgate/internal/dispatch"
	"github.com/MEKXH/taskgate/internal/policy"
	"github.com/cloudwego/eino/schema"
)

const (
	FetchAndSave      = "fetch-and-save"
	CloneAndCommit    = "clone-and-commit"
	RunSQLQuery       = "run-sql-query"
	ScrapePage        = "scrape-page"
	ResizeImage       = "resize-image"
	TranscribeAudio   = "transcribe-audio"
	RenderMarkdown    = "render-markdown"
	FilterTabularData = "filter-tabular-data"

	maxErrorBodyInMessage = 512
)

func requiredString(desc string) *schema.ParameterInfo {
	return &schema.ParameterInfo{Type: schema.String, Desc: desc, Required: true}
}

// writeNew creates path exclusively. A concurrent creator surfaces as
// policy.ErrExists, which the dispatcher reports as a policy violation.
func writeNew(path string, data []byte) error {
	if err := policy.WriteExclusive(path, data); err != nil {
		if errors.Is(err, policy.ErrExists) {
			return err
		}
		return dispatch.Failf(err, "write %s", path)
	}
	return nil
}

func readFile(step, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dispatch.Failf(err, "%s", step)
	}
	return data, nil
}

func parseHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme: %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url has no host")
	}
	return u, nil
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
