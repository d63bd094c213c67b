package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/moyeo-ai/moyeo/internal/agent/tool"
)

// execute runs the selected tool. Query tools run immediately. Mutation
// tools interrupt the run with a confirmation payload on the first pass and
// execute on the resumed pass, exactly once per request ID.
func (g *Graph) execute(ctx context.Context, st *State, emit Emitter) (interrupted bool, err error) {
	t, ok := g.tools.Get(st.SelectedTool)
	if !ok {
		st.AddResult(fmt.Sprintf("알 수 없는 도구: %s", st.SelectedTool))
		st.Step = StepEvaluate
		return false, nil
	}

	if t.Category == tool.CategoryMutation {
		switch {
		case st.HITL == nil:
			return true, g.interrupt(ctx, st, t, emit)
		case st.HITL.Executed:
			// Duplicate resume: the result is already in the accumulator.
			st.Step = StepEvaluate
			return false, nil
		case st.HITL.Status != HITLConfirmed:
			// Cancelled or still pending; never execute.
			st.Step = StepRespond
			return false, nil
		}
	}

	result, invErr := t.Handler(ctx, tool.Invocation{UserID: st.UserID, Args: st.ToolArgs})
	if invErr != nil {
		slog.Warn("tool invocation failed", "runID", st.RunID, "tool", t.Name, "error", invErr)
		g.metrics.RecordToolCall(ctx, t.Name, "error")
		st.AddResult(fmt.Sprintf("도구 실행 실패 (%s): %v", t.Name, invErr))
		st.Retries++
	} else {
		g.metrics.RecordToolCall(ctx, t.Name, "ok")
		st.AddResult(result)
	}

	if t.Category == tool.CategoryMutation && st.HITL != nil {
		st.HITL.Executed = true
		st.HITL.Status = HITLExecuted
		// Persist immediately so a duplicate resume replays the result
		// instead of running the mutation again.
		if err := g.checkpoints.Save(ctx, st); err != nil {
			slog.Error("failed to checkpoint executed mutation", "runID", st.RunID, "error", err)
		}
	}
	st.Step = StepEvaluate
	return false, nil
}

// interrupt checkpoints the run and hands the confirmation payload to the
// client. The run resumes through [Graph.Resume].
func (g *Graph) interrupt(ctx context.Context, st *State, t tool.Tool, emit Emitter) error {
	payload, err := g.buildHITLPayload(ctx, st, t)
	if err != nil {
		return fmt.Errorf("graph: build confirmation payload: %w", err)
	}
	st.HITL = &HITLState{
		Status:    HITLPending,
		RequestID: payload.HITLRequestID,
		Payload:   payload,
	}
	if err := g.checkpoints.Save(ctx, st); err != nil {
		return fmt.Errorf("graph: checkpoint interrupted run: %w", err)
	}
	emit(Event{Kind: EventHITL, HITL: payload})
	slog.Info("run interrupted for confirmation",
		"runID", st.RunID, "tool", t.Name, "requestID", payload.HITLRequestID)
	return nil
}

// buildHITLPayload assembles the confirmation contract: the planner's
// arguments, human-readable display values, the field schema with dynamic
// select options resolved, and a fresh request ID.
func (g *Graph) buildHITLPayload(ctx context.Context, st *State, t tool.Tool) (*HITLPayload, error) {
	fields := make([]RequiredField, 0, len(t.HITLFields))
	display := make(map[string]string, len(st.ToolArgs))
	for k, v := range st.ToolArgs {
		display[k] = fmt.Sprintf("%v", v)
	}

	for _, f := range t.HITLFields {
		rf := RequiredField{
			Name:        f.Name,
			Description: f.Description,
			Type:        f.Type,
			Required:    f.Required,
			InputType:   f.InputType,
			Placeholder: f.Placeholder,
		}
		if f.OptionsSource != "" && g.options != nil {
			opts, err := g.options.Options(ctx, f.OptionsSource, st.UserID)
			if err != nil {
				slog.Warn("failed to load confirmation options",
					"runID", st.RunID, "source", f.OptionsSource, "error", err)
			} else {
				rf.Options = opts
				// Substitute opaque IDs with their labels in the display map.
				if raw, ok := st.ToolArgs[f.Name].(string); ok {
					for _, o := range opts {
						if o.Value == raw {
							display[f.Name] = o.Label
							break
						}
					}
				}
			}
		}
		if v, ok := st.ToolArgs[f.Name]; ok {
			rf.DefaultValue = v
			rf.DefaultDisplay = display[f.Name]
		}
		fields = append(fields, rf)
	}

	return &HITLPayload{
		RunID:               st.RunID,
		ToolName:            t.Name,
		Params:              st.ToolArgs,
		ParamsDisplay:       display,
		RequiredFields:      fields,
		DisplayTemplate:     renderTemplate(t.DisplayTemplate, display),
		ConfirmationMessage: t.ConfirmationMessage,
		HITLRequestID:       uuid.NewString(),
	}, nil
}

// renderTemplate substitutes {{name}} placeholders with display values.
// Unknown placeholders are left in place so the gap is visible.
func renderTemplate(tmpl string, display map[string]string) string {
	out := tmpl
	for k, v := range display {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}

// applyResume records the user's confirmation decision on the checkpointed
// state. Confirm merges edited field values over the planner's arguments and
// re-enters the executor; cancel ends the run with (unless silent) the
// cancellation message.
func (g *Graph) applyResume(_ context.Context, st *State, rv ResumeValue, emit Emitter) error {
	switch rv.Action {
	case ActionConfirm:
		if st.ToolArgs == nil {
			st.ToolArgs = make(map[string]any)
		}
		for k, v := range rv.Params {
			st.ToolArgs[k] = v
		}
		st.HITL.Status = HITLConfirmed
		st.Step = StepExecute
		emit(Event{Kind: EventStatus, Content: "executing"})
		return nil
	case ActionCancel:
		st.HITL.Status = HITLCancelled
		if !rv.Silent {
			st.Final = g.cfg.CancelledMessage
		}
		st.Step = StepRespond
		return nil
	default:
		return fmt.Errorf("graph: unknown resume action %q", rv.Action)
	}
}
