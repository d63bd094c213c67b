package graph

import (
	"time"

	"github.com/moyeo-ai/moyeo/internal/agent/tool"
	"github.com/moyeo-ai/moyeo/pkg/llm"
)

// Step names the node a run executes next. Persisted with the state so a
// resumed run continues exactly where it stopped.
type Step string

const (
	StepPlan     Step = "plan"
	StepExecute  Step = "execute"
	StepEvaluate Step = "evaluate"
	StepRespond  Step = "respond"
	StepDone     Step = "done"
)

// Evaluation outcomes.
const (
	EvalSuccess    = "success"
	EvalRetry      = "retry"
	EvalReplanning = "replanning"
)

// HITL statuses.
const (
	HITLPending   = "pending"
	HITLConfirmed = "confirmed"
	HITLCancelled = "cancelled"
	HITLExecuted  = "executed"
)

// ResultsReset is the sentinel accumulator value: adding it clears every
// previously collected tool result. The planner pushes it when the
// evaluator asks for a full replan.
const ResultsReset = "\x00results-reset"

// QueryClass values assigned by the fast pre-router.
const (
	ClassGeneral = "general"
	ClassGuide   = "guide"
)

// HITLState tracks a pending or completed mutation confirmation.
type HITLState struct {
	Status    string       `json:"status"`
	RequestID string       `json:"request_id"`
	Payload   *HITLPayload `json:"payload,omitempty"`

	// Executed guards against double execution when the same request ID is
	// resumed twice: the tool ran and its result is already in Results.
	Executed bool `json:"executed"`
}

// State is the shared state threaded through the graph nodes. It is fully
// JSON-serializable so an interrupted run survives a process restart.
type State struct {
	RunID     string `json:"run_id"`
	MeetingID string `json:"meeting_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name,omitempty"`

	Mode    tool.Mode `json:"mode"`
	Channel string    `json:"channel"`

	// Query is the user's utterance; Subquery is a planner-generated
	// follow-up for composite queries.
	Query    string `json:"query"`
	Subquery string `json:"subquery,omitempty"`

	// QueryClass is set by the fast pre-router ("general" or "guide").
	QueryClass string `json:"query_class,omitempty"`

	// Context is the meeting context snapshot taken at run start.
	Context string `json:"context,omitempty"`

	Messages []llm.Message `json:"messages,omitempty"`

	Plan string `json:"plan,omitempty"`

	SelectedTool string         `json:"selected_tool,omitempty"`
	ToolArgs     map[string]any `json:"tool_args,omitempty"`
	ToolCategory tool.Category  `json:"tool_category,omitempty"`

	Results []string `json:"results,omitempty"`

	Retries    int    `json:"retries"`
	Iterations int    `json:"iterations"`
	EvalStatus string `json:"eval_status,omitempty"`

	HITL *HITLState `json:"hitl,omitempty"`

	Final string `json:"final,omitempty"`

	Step      Step      `json:"step"`
	StartedAt time.Time `json:"started_at"`
}

// AddResult appends one tool result to the accumulator. The ResultsReset
// sentinel clears it instead.
func (s *State) AddResult(r string) {
	if r == ResultsReset {
		s.Results = nil
		return
	}
	s.Results = append(s.Results, r)
}

// LastResult returns the newest tool result, or "".
func (s *State) LastResult() string {
	if len(s.Results) == 0 {
		return ""
	}
	return s.Results[len(s.Results)-1]
}

// clearSelection drops the tool choice before a new planning round.
func (s *State) clearSelection() {
	s.SelectedTool = ""
	s.ToolArgs = nil
	s.ToolCategory = ""
}
