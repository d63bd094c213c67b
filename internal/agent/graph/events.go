// Package graph implements the agent orchestration state machine: a
// planner selects a tool or answers directly, an executor runs the tool
// (interrupting for human confirmation on mutations), an evaluator decides
// whether to loop, and a response generator streams the final answer.
//
// A run is resumable: at a human-in-the-loop interrupt the full state is
// persisted through a [Checkpointer] and the run returns. An external
// confirm or cancel event resumes it from the checkpoint.
package graph

// EventKind classifies the events a run emits while executing.
type EventKind string

const (
	// EventStatus is intermediate progress text for an ephemeral UI state.
	EventStatus EventKind = "status"

	// EventMessage is a chunk of the final natural-language answer.
	EventMessage EventKind = "message"

	// EventHITL carries the confirmation payload of an interrupted mutation.
	EventHITL EventKind = "hitl"

	// EventDone terminates the stream after a completed run.
	EventDone EventKind = "done"

	// EventError terminates the stream after a failed run.
	EventError EventKind = "error"
)

// Event is one item of a run's output stream.
type Event struct {
	Kind    EventKind `json:"event"`
	Content string    `json:"content,omitempty"`

	// HITL is set on EventHITL events only.
	HITL *HITLPayload `json:"hitl,omitempty"`
}

// Emitter receives run events. Implementations must not block indefinitely;
// the run executes on the caller's goroutine.
type Emitter func(Event)

// HITLPayload is the external confirmation contract handed to the client
// when a mutation tool interrupts the run.
type HITLPayload struct {
	// RunID addresses the interrupted run on the resume endpoint.
	RunID string `json:"run_id"`

	ToolName string `json:"tool_name"`

	// Params are the arguments the planner chose.
	Params map[string]any `json:"params"`

	// ParamsDisplay maps parameter names to human-readable labels; UUID
	// arguments are substituted with their display names.
	ParamsDisplay map[string]string `json:"params_display"`

	RequiredFields []RequiredField `json:"required_fields"`

	// DisplayTemplate renders the one-line confirmation with {{param}}
	// placeholders.
	DisplayTemplate string `json:"display_template"`

	ConfirmationMessage string `json:"confirmation_message"`

	// HITLRequestID identifies the interrupt; resuming with the same ID
	// twice executes the tool at most once.
	HITLRequestID string `json:"hitl_request_id"`
}

// RequiredField describes one input of the confirmation form.
type RequiredField struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	InputType   string `json:"input_type"`
	Placeholder string `json:"placeholder,omitempty"`

	// Options is populated for select inputs from the field's dynamic
	// options source.
	Options []Option `json:"options,omitempty"`

	DefaultValue   any    `json:"default_value,omitempty"`
	DefaultDisplay string `json:"default_display,omitempty"`
}

// Option is one entry of a select input.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Resume actions.
const (
	ActionConfirm = "confirm"
	ActionCancel  = "cancel"
)

// ResumeValue is the client's answer to a HITL interrupt.
type ResumeValue struct {
	// Action is "confirm" or "cancel".
	Action string `json:"action"`

	// Params carries edited field values merged over the planner's
	// arguments on confirm.
	Params map[string]any `json:"params,omitempty"`

	// Silent suppresses the cancellation message.
	Silent bool `json:"silent,omitempty"`
}
