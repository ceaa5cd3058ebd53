// Package agent drives the registered actions from a natural-language task
// using a tool-calling chat model.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/MEKXH/taskgate/internal/dispatch"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultMaxIterations = 10

// ErrIterationLimit is returned when the model keeps calling tools past the
// configured limit.
var ErrIterationLimit = errors.New("tool iteration limit reached")

// Reasoning models (deepseek-r1, qwq via ollama) prefix answers with a
// <think> block that callers never want.
var thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Toolset provides the tools the model may call.
type Toolset interface {
	Tools() []tool.InvokableTool
}

// Options tune a Loop.
type Options struct {
	MaxIterations int
	SandboxRoot   string
}

// Loop runs one task at a time against a chat model. Tool calls issued in a
// single model turn execute concurrently.
type Loop struct {
	model         model.BaseChatModel
	tools         map[string]tool.InvokableTool
	infos         []*schema.ToolInfo
	maxIterations int
	systemPrompt  string

	OnToolStart  func(name, args string)
	OnToolFinish func(name, result string, err error)
}

// NewLoop binds every tool in the toolset to the model.
func NewLoop(ctx context.Context, chatModel model.BaseChatModel, toolset Toolset, opts Options) (*Loop, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}

	l := &Loop{
		model:         chatModel,
		tools:         make(map[string]tool.InvokableTool),
		maxIterations: maxIterations,
		systemPrompt:  buildSystemPrompt(opts.SandboxRoot),
	}
	if toolset != nil {
		for _, t := range toolset.Tools() {
			info, err := t.Info(ctx)
			if err != nil {
				return nil, err
			}
			l.tools[info.Name] = t
			l.infos = append(l.infos, info)
		}
	}
	if err := l.bindTools(); err != nil {
		return nil, fmt.Errorf("bind tools: %w", err)
	}
	return l, nil
}

func (l *Loop) bindTools() error {
	if len(l.infos) == 0 {
		return nil
	}
	if tcm, ok := l.model.(model.ToolCallingChatModel); ok {
		bound, err := tcm.WithTools(l.infos)
		if err != nil {
			return err
		}
		l.model = bound
		return nil
	}
	if binder, ok := l.model.(interface {
		BindTools([]*schema.ToolInfo) error
	}); ok {
		return binder.BindTools(l.infos)
	}
	return fmt.Errorf("model does not support tool calling")
}

func buildSystemPrompt(root string) string {
	var b strings.Builder
	b.WriteString("You complete data tasks by calling the provided tools. ")
	b.WriteString("Every file a tool reads or writes must be inside the sandbox")
	if root != "" {
		fmt.Fprintf(&b, " %s", root)
	}
	b.WriteString(". Existing files are never overwritten or deleted: choose new output paths. ")
	b.WriteString("When a tool reports policy_violation, do not retry the same path. ")
	b.WriteString("Reply with a short summary of what was produced once the task is done.")
	return b.String()
}

// Run executes task and returns the model's final answer.
func (l *Loop) Run(ctx context.Context, task string) (string, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return "", fmt.Errorf("task is required")
	}

	meta := dispatch.InvocationFromContext(ctx)
	if meta.RequestID == "" {
		meta.RequestID = uuid.NewString()
	}
	if meta.Source == "" {
		meta.Source = "agent"
	}
	ctx = dispatch.WithInvocation(ctx, meta)

	messages := []*schema.Message{
		schema.SystemMessage(l.systemPrompt),
		schema.UserMessage(task),
	}
	slog.Info("task started", "request_id", meta.RequestID, "source", meta.Source, "tools", len(l.tools))

	var finalContent string
	for i := 0; i < l.maxIterations; i++ {
		resp, err := l.model.Generate(ctx, messages)
		if err != nil {
			return "", fmt.Errorf("generate: %w", err)
		}
		if content := stripThink(resp.Content); content != "" {
			finalContent = content
		}
		if len(resp.ToolCalls) == 0 {
			slog.Info("task finished", "request_id", meta.RequestID, "iterations", i+1)
			return finalContent, nil
		}

		messages = append(messages, resp)
		results, err := l.executeToolCalls(ctx, meta.RequestID, resp.ToolCalls)
		if err != nil {
			return "", err
		}
		messages = append(messages, results...)
	}

	slog.Warn("task stopped at iteration limit", "request_id", meta.RequestID, "max_iterations", l.maxIterations)
	if finalContent != "" {
		return finalContent, ErrIterationLimit
	}
	return "", ErrIterationLimit
}

// executeToolCalls runs every call concurrently and returns the tool messages
// in call order. Tool failures are reported to the model as content; only
// cancellation aborts the task.
func (l *Loop) executeToolCalls(ctx context.Context, requestID string, calls []schema.ToolCall) ([]*schema.Message, error) {
	results := make([]*schema.Message, len(calls))
	g, gctx := errgroup.WithContext(ctx)

	for i, tc := range calls {
		g.Go(func() error {
			start := time.Now()
			name := tc.Function.Name
			if l.OnToolStart != nil {
				l.OnToolStart(name, tc.Function.Arguments)
			}

			result, err := l.invoke(gctx, name, tc.Function.Arguments)
			if err != nil {
				result = "Error: " + err.Error()
			}
			slog.Info("tool execution finished",
				"request_id", requestID,
				"tool", name,
				"duration_ms", time.Since(start).Milliseconds(),
				"success", err == nil,
			)
			if l.OnToolFinish != nil {
				l.OnToolFinish(name, result, err)
			}

			results[i] = &schema.Message{
				Role:       schema.Tool,
				Content:    result,
				ToolCallID: tc.ID,
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (l *Loop) invoke(ctx context.Context, name, args string) (string, error) {
	t, ok := l.tools[name]
	if !ok {
		return "", &dispatch.Error{Kind: dispatch.KindUnknownAction, Action: name, Message: fmt.Sprintf("unknown action %q", name)}
	}
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	return t.InvokableRun(ctx, args)
}

func stripThink(content string) string {
	return strings.TrimSpace(thinkBlockRe.ReplaceAllString(content, ""))
}
