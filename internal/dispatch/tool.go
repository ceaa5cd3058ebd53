package dispatch

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// actionTool exposes one action as an eino tool. Calls go through Dispatch,
// so model-initiated calls are gated exactly like HTTP or CLI calls.
type actionTool struct {
	dispatcher *Dispatcher
	spec       *Spec
}

func (t *actionTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return t.spec.ToolInfo(), nil
}

func (t *actionTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	params := map[string]any{}
	if strings.TrimSpace(argumentsInJSON) != "" {
		if err := json.Unmarshal([]byte(argumentsInJSON), &params); err != nil {
			return "", invalidParams(t.spec.Name, "", "arguments are not a JSON object: %v", err)
		}
	}
	res, err := t.dispatcher.Dispatch(ctx, Request{Name: t.spec.Name, Params: params})
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(res.Payload)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Tool returns the named action as an eino invokable tool.
func (d *Dispatcher) Tool(name string) (tool.InvokableTool, bool) {
	spec, ok := d.registry.Get(name)
	if !ok {
		return nil, false
	}
	return &actionTool{dispatcher: d, spec: spec}, true
}

// Tools returns every registered action as an eino invokable tool.
func (d *Dispatcher) Tools() []tool.InvokableTool {
	specs := d.registry.List()
	out := make([]tool.InvokableTool, 0, len(specs))
	for _, spec := range specs {
		out = append(out, &actionTool{dispatcher: d, spec: spec})
	}
	return out
}
