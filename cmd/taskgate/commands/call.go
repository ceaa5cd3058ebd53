package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MEKXH/taskgate/internal/config"
	"github.com/MEKXH/taskgate/internal/dispatch"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type actionDispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

func NewCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <action>",
		Short: "Dispatch one action and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runCall,
	}
	cmd.Flags().StringArrayP("param", "p", nil, "Parameter as key=value; values are parsed as JSON when possible")
	cmd.Flags().String("json", "", "All parameters as one JSON object")
	return cmd
}

func runCall(cmd *cobra.Command, args []string) error {
	rawParams, _ := cmd.Flags().GetStringArray("param")
	rawJSON, _ := cmd.Flags().GetString("json")
	params, err := parseParams(rawJSON, rawParams)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	rt, err := buildServices(cfg)
	if err != nil {
		return err
	}
	return callAction(cmd.Context(), rt.dispatcher, args[0], params, os.Stdout)
}

// callAction prints a JSON envelope for the outcome. A failed dispatch is
// printed and also returned so the process exits non-zero.
func callAction(ctx context.Context, d actionDispatcher, name string, params map[string]any, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	requestID := uuid.NewString()
	ctx = dispatch.WithInvocation(ctx, dispatch.Invocation{RequestID: requestID, Source: "cli"})

	res, err := d.Dispatch(ctx, dispatch.Request{Name: name, Params: params})
	if err != nil {
		if encErr := writeEnvelope(out, errorEnvelope(requestID, err)); encErr != nil {
			return encErr
		}
		return err
	}
	return writeEnvelope(out, map[string]any{
		"action":     res.Action,
		"result":     res.Payload,
		"request_id": requestID,
	})
}

func errorEnvelope(requestID string, err error) map[string]any {
	de, ok := dispatch.AsError(err)
	if !ok {
		de = &dispatch.Error{Kind: dispatch.KindActionError, Cause: err}
	}
	body := map[string]any{
		"kind":       string(de.Kind),
		"message":    de.Error(),
		"request_id": requestID,
	}
	if de.Action != "" {
		body["action"] = de.Action
	}
	if de.Param != "" {
		body["param"] = de.Param
	}
	if de.Path != "" {
		body["path"] = de.Path
	}
	if de.Rule != "" {
		body["rule"] = string(de.Rule)
	}
	if de.Timeout {
		body["timeout"] = true
	}
	return map[string]any{"error": body}
}

func writeEnvelope(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseParams merges the --json object with key=value pairs; pairs win.
func parseParams(rawJSON string, pairs []string) (map[string]any, error) {
	params := make(map[string]any)
	if strings.TrimSpace(rawJSON) != "" {
		if err := json.Unmarshal([]byte(rawJSON), &params); err != nil {
			return nil, fmt.Errorf("invalid --json: %w", err)
		}
		if params == nil {
			params = make(map[string]any)
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", pair)
		}
		params[key] = parseValue(value)
	}
	return params, nil
}

func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}
