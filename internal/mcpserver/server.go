// Package mcpserver exposes the engine as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/acuity/internal/classify"
	"github.com/vthunder/acuity/internal/engine"
	"github.com/vthunder/acuity/internal/ledger"
	"github.com/vthunder/acuity/internal/logging"
	"github.com/vthunder/acuity/internal/types"
)

// Tools holds the handlers. gen may be nil, in which case categorizing falls
// back to local grouping.
type Tools struct {
	engine *engine.Engine
	gen    classify.Generator
}

// NewTools creates the tool handlers for eng
func NewTools(eng *engine.Engine, gen classify.Generator) *Tools {
	return &Tools{engine: eng, gen: gen}
}

// NewServer builds an MCP server with every tool registered
func NewServer(name, version string, t *Tools) *server.MCPServer {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(true))

	s.AddTool(mcp.NewTool("set_task",
		mcp.WithDescription("Set the task you intend to focus on. An empty task switches to observe-only mode."),
		mcp.WithString("task", mcp.Required(), mcp.Description("Short description of the current task")),
	), t.SetTask)

	s.AddTool(mcp.NewTool("confirm_task",
		mcp.WithDescription("Confirm the current task after an off-task warning. Resets the off-task counter."),
		mcp.WithString("task", mcp.Required(), mcp.Description("Task being confirmed")),
	), t.ConfirmTask)

	s.AddTool(mcp.NewTool("start_tracking",
		mcp.WithDescription("Start periodic screen checks against the current task."),
	), t.StartTracking)

	s.AddTool(mcp.NewTool("stop_tracking",
		mcp.WithDescription("Stop screen checks. Any check in progress is discarded."),
	), t.StopTracking)

	s.AddTool(mcp.NewTool("complete_task",
		mcp.WithDescription("Mark a task done and split its time into focused and distracted shares. Without a task, completes the current one timed from the start of tracking."),
		mcp.WithString("task", mcp.Description("Task text. Default: the current task")),
		mcp.WithNumber("elapsed_ms", mcp.Description("Time spent in milliseconds. Omit for untimed tasks")),
		mcp.WithString("source", mcp.Description("How the task was completed: manual, todo, hotkey or api. Default: manual")),
	), t.CompleteTask)

	s.AddTool(mcp.NewTool("focus_status",
		mcp.WithDescription("Show tracking state, current task, mode and escalation level."),
	), t.Status)

	s.AddTool(mcp.NewTool("focus_history",
		mcp.WithDescription("List recent observations, newest first."),
		mcp.WithString("range", mcp.Description("today, week, month or all. Default: all")),
		mcp.WithNumber("limit", mcp.Description("Maximum observations to return. Default: 20")),
	), t.History)

	s.AddTool(mcp.NewTool("focus_report",
		mcp.WithDescription("Summarize on-task and off-task percentages and the most common distractions."),
		mcp.WithString("range", mcp.Description("today, week, month or all. Default: today")),
		mcp.WithString("task", mcp.Description("Only count observations for this task")),
	), t.Report)

	s.AddTool(mcp.NewTool("categorize_off_task",
		mcp.WithDescription("Group off-task activities into named categories."),
		mcp.WithString("range", mcp.Description("today, week, month or all. Default: today")),
		mcp.WithString("task", mcp.Description("Only consider observations for this task")),
	), t.Categorize)

	return s
}

// Serve runs the server on stdin/stdout until the client disconnects
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func (t *Tools) SetTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	task, _ := args["task"].(string)
	t.engine.SetTask(task)
	return jsonResult(t.engine.Status())
}

func (t *Tools) ConfirmTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	task, _ := args["task"].(string)
	t.engine.ConfirmTask(task)
	return jsonResult(t.engine.Status())
}

func (t *Tools) StartTracking(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !t.engine.Start() {
		return mcp.NewToolResultText("Already tracking"), nil
	}
	st := t.engine.Status()
	if st.Task == "" {
		return mcp.NewToolResultText("Tracking started in observe-only mode (no task set)"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Tracking started for %q", st.Task)), nil
}

func (t *Tools) StopTracking(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !t.engine.Stop() {
		return mcp.NewToolResultText("Not tracking"), nil
	}
	return mcp.NewToolResultText("Tracking stopped"), nil
}

func (t *Tools) CompleteTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	task, _ := args["task"].(string)
	source := types.SourceManual
	if s, ok := args["source"].(string); ok && s != "" {
		source = types.CompletionSource(s)
	}

	var (
		ct  types.CompletedTask
		err error
	)
	if task == "" {
		ct, err = t.engine.CompleteCurrent(source)
	} else {
		var elapsed *time.Duration
		if ms, ok := args["elapsed_ms"].(float64); ok {
			d := time.Duration(ms) * time.Millisecond
			elapsed = &d
		}
		ct, err = t.engine.CompleteTask(task, elapsed, source)
	}
	if err != nil {
		if errors.Is(err, engine.ErrNoTask) {
			return mcp.NewToolResultError("no task to complete: pass task or set one first"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to complete task: %v", err)), nil
	}
	return jsonResult(ct)
}

func (t *Tools) Status(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.engine.Status())
}

func (t *Tools) History(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	rng, err := rangeArg(args, ledger.RangeAll)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := 20
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}
	return jsonResult(t.engine.History(rng, limit))
}

func (t *Tools) Report(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	rng, err := rangeArg(args, ledger.RangeToday)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	task, _ := args["task"].(string)
	return jsonResult(t.engine.Report(rng, task))
}

func (t *Tools) Categorize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	rng, err := rangeArg(args, ledger.RangeToday)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	task, _ := args["task"].(string)

	activities := t.engine.Report(rng, task).OffTaskActivities()
	if len(activities) == 0 {
		return mcp.NewToolResultText("No off-task activities recorded"), nil
	}

	if t.gen != nil {
		cats, err := classify.Categorize(ctx, t.gen, activities)
		if err == nil && len(cats) > 0 {
			return jsonResult(cats)
		}
		logging.Warn("mcp", "Model categorization failed, grouping locally: %v", err)
	}
	return jsonResult(ledger.GroupActivities(activities))
}

func rangeArg(args map[string]any, fallback ledger.Range) (ledger.Range, error) {
	s, _ := args["range"].(string)
	if s == "" {
		return fallback, nil
	}
	return ledger.ParseRange(s)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
