package tools

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/MEKXH/taskgate/internal/dispatch"
	"github.com/MEKXH/taskgate/internal/policy"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ScrapeResult is the payload of scrape-page.
type ScrapeResult struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

type htmlTextExtractor struct{}

// NewTextExtractor returns an extractor that tokenizes HTML, skipping script,
// style and other non-rendered elements.
func NewTextExtractor() TextExtractor {
	return htmlTextExtractor{}
}

var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Title: true, atom.Pre: true, atom.Blockquote: true, atom.Table: true,
}

var inlineWhitespace = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

// ExtractText returns the document text, one block per line with runs of
// whitespace collapsed and blank lines dropped.
func (htmlTextExtractor) ExtractText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var raw strings.Builder
	skipDepth := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", err
			}
			return collapseLines(raw.String()), nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skippedElements[a] && tt == html.StartTagToken {
				skipDepth++
			}
			if blockElements[a] {
				raw.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skippedElements[a] && skipDepth > 0 {
				skipDepth--
			}
			if blockElements[a] {
				raw.WriteByte('\n')
			}
		case html.TextToken:
			if skipDepth == 0 {
				raw.WriteString(inlineWhitespace.Replace(string(z.Text())))
			}
		}
	}
}

func collapseLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

type scrapeImpl struct {
	client    HTTPDoer
	extractor TextExtractor
	maxBytes  int64
}

// NewScrapePage fetches an HTML page and saves its visible text.
func NewScrapePage(client HTTPDoer, extractor TextExtractor, maxBytes int64) *dispatch.Spec {
	if maxBytes <= 0 {
		maxBytes = defaultFetchMaxBytes
	}
	impl := &scrapeImpl{client: client, extractor: extractor, maxBytes: maxBytes}
	return &dispatch.Spec{
		Name: ScrapePage,
		Desc: "Fetch a web page and save its visible text to a new file",
		Params: map[string]*schema.ParameterInfo{
			"url":         requiredString("http or https URL of the page"),
			"output_path": requiredString("Destination text file; must not exist"),
		},
		Paths: []dispatch.PathParam{
			{Param: "output_path", Intent: policy.IntentWriteNew},
		},
		Validate: func(p dispatch.Params) error {
			_, err := parseHTTPURL(p.String("url"))
			return err
		},
		Perform: impl.perform,
	}
}

func (s *scrapeImpl) perform(ctx context.Context, call *dispatch.Call) (any, error) {
	body, _, err := httpGet(ctx, s.client, call.Params.String("url"), s.maxBytes)
	if err != nil {
		return nil, err
	}
	text, err := s.extractor.ExtractText(bytes.NewReader(body))
	if err != nil {
		return nil, dispatch.Failf(err, "extract text")
	}

	out := call.Path("output_path")
	data := []byte(text)
	if err := writeNew(out, data); err != nil {
		return nil, err
	}
	return &ScrapeResult{Path: out, Bytes: len(data)}, nil
}
