package tools

import (
	"context"

	"github.com/MEKXH/taskgate/internal/dispatch"
	"github.com/MEKXH/taskgate/internal/policy"
	"github.com/cloudwego/eino/schema"
)

// MarkdownResult is the payload of render-markdown.
type MarkdownResult struct {
	Path string `json:"path"`
	HTML string `json:"html"`
}

type markdownImpl struct {
	renderer MarkdownRenderer
}

// NewRenderMarkdown converts a markdown file to HTML in a new file.
func NewRenderMarkdown(renderer MarkdownRenderer) *dispatch.Spec {
	if renderer == nil {
		renderer = NewMarkdownRenderer()
	}
	impl := &markdownImpl{renderer: renderer}
	return &dispatch.Spec{
		Name: RenderMarkdown,
		Desc: "Render a markdown file to HTML and save it to a new file",
		Params: map[string]*schema.ParameterInfo{
			"md_path":     requiredString("Markdown source file"),
			"output_path": requiredString("Destination HTML file; must not exist"),
		},
		Paths: []dispatch.PathParam{
			{Param: "md_path", Intent: policy.IntentRead},
			{Param: "output_path", Intent: policy.IntentWriteNew},
		},
		Perform: impl.perform,
	}
}

func (m *markdownImpl) perform(_ context.Context, call *dispatch.Call) (any, error) {
	src, err := readFile("read markdown", call.Path("md_path"))
	if err != nil {
		return nil, err
	}
	html, err := m.renderer.Render(src)
	if err != nil {
		return nil, dispatch.Failf(err, "render markdown")
	}

	out := call.Path("output_path")
	if err := writeNew(out, html); err != nil {
		return nil, err
	}
	return &MarkdownResult{Path: out, HTML: string(html)}, nil
}
