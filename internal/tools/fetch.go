package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/MEKXH/taskgate/internal/dispatch"
	"github.com/MEKXH/taskgate/internal/policy"
	"github.com/cloudwego/eino/schema"
)

const (
	defaultFetchMaxBytes = 10 * 1024 * 1024
	userAgent            = "taskgate/1.0"
)

// PayloadKind is how a fetched body is written to disk.
type PayloadKind string

const (
	PayloadJSON PayloadKind = "json"
	PayloadText PayloadKind = "text"
)

// ResolvePayloadKind classifies a response by its Content-Type header.
func ResolvePayloadKind(contentType string) PayloadKind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	if mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") {
		return PayloadJSON
	}
	return PayloadText
}

// FetchResult is the payload of fetch-and-save.
type FetchResult struct {
	Path  string      `json:"path"`
	Kind  PayloadKind `json:"kind"`
	Bytes int         `json:"bytes"`
}

type fetchImpl struct {
	client   HTTPDoer
	maxBytes int64
}

// NewFetchAndSave downloads a URL into a new file under the sandbox. JSON
// bodies are re-indented with four spaces; anything else is written verbatim.
func NewFetchAndSave(client HTTPDoer, maxBytes int64) *dispatch.Spec {
	if maxBytes <= 0 {
		maxBytes = defaultFetchMaxBytes
	}
	impl := &fetchImpl{client: client, maxBytes: maxBytes}
	return &dispatch.Spec{
		Name: FetchAndSave,
		Desc: "Download a URL and save the response body to a new file",
		Params: map[string]*schema.ParameterInfo{
			"url":       requiredString("http or https URL to download"),
			"save_path": requiredString("Destination file; must not exist"),
		},
		Paths: []dispatch.PathParam{
			{Param: "save_path", Intent: policy.IntentWriteNew},
		},
		Validate: func(p dispatch.Params) error {
			_, err := parseHTTPURL(p.String("url"))
			return err
		},
		Perform: impl.perform,
	}
}

func (f *fetchImpl) perform(ctx context.Context, call *dispatch.Call) (any, error) {
	body, contentType, err := httpGet(ctx, f.client, call.Params.String("url"), f.maxBytes)
	if err != nil {
		return nil, err
	}

	kind := ResolvePayloadKind(contentType)
	data := body
	if kind == PayloadJSON {
		var buf bytes.Buffer
		if err := json.Indent(&buf, bytes.TrimSpace(body), "", "    "); err != nil {
			return nil, dispatch.Failf(err, "decode json response")
		}
		data = buf.Bytes()
	}

	path := call.Path("save_path")
	if err := writeNew(path, data); err != nil {
		return nil, err
	}
	return &FetchResult{Path: path, Kind: kind, Bytes: len(data)}, nil
}

// httpGet performs a GET and returns the body and Content-Type. A non-2xx
// status is an action error carrying a truncated body.
func httpGet(ctx context.Context, client HTTPDoer, rawURL string, maxBytes int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", dispatch.Failf(err, "build request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", dispatch.Failf(err, "fetch %s", rawURL)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, "", dispatch.Failf(err, "read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", dispatch.Failf(nil, "fetch %s: HTTP %d: %s", rawURL, resp.StatusCode, truncate(string(body), maxErrorBodyInMessage))
	}
	if int64(len(body)) > maxBytes {
		return nil, "", dispatch.Failf(nil, "response body exceeds %d bytes", maxBytes)
	}
	return body, resp.Header.Get("Content-Type"), nil
}
