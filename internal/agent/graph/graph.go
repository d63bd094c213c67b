package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/moyeo-ai/moyeo/internal/agent/tool"
	"github.com/moyeo-ai/moyeo/internal/observe"
	"github.com/moyeo-ai/moyeo/pkg/llm"
)

// ErrInterrupted is returned by Start and Resume when the run suspended at
// a human-in-the-loop confirmation. The run's state is checkpointed; the
// caller delivers the HITL payload (already emitted as an [EventHITL]) and
// later calls Resume with the user's answer.
var ErrInterrupted = errors.New("run interrupted for confirmation")

// Config tunes one graph instance. The keyword lists drive the lexical
// heuristics; the defaults match the product's Korean meeting assistant.
type Config struct {
	// Mode filters the tool catalog: voice sees queries only, spotlight
	// sees queries and mutations.
	Mode tool.Mode

	// MaxRetries caps planner rounds after evaluator rejection. Default 3.
	MaxRetries int

	// MaxIterations is the hard ceiling on node transitions before the
	// evaluator is forced to succeed. Default 12.
	MaxIterations int

	// SuccessMarkers are substrings of tool results indicating a completed
	// mutation; their presence short-circuits planning and evaluation.
	SuccessMarkers []string

	// AssignmentHints and TeamHints detect composite queries: an utterance
	// containing one of each needs a second tool round.
	AssignmentHints []string
	TeamHints       []string

	// ReferentialTokens mark a query as already being a sub-query, so
	// composite detection does not recurse.
	ReferentialTokens []string

	// FollowUpQuery is the sub-query issued for a detected composite query.
	FollowUpQuery string

	// CancelledMessage is the explicit cancellation answer. A silent cancel
	// suppresses it.
	CancelledMessage string

	// ApologyMessage is the canned answer when planning fails outright.
	ApologyMessage string
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = tool.ModeVoice
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 12
	}
	if len(c.SuccessMarkers) == 0 {
		c.SuccessMarkers = []string{"생성되었습니다", "수정되었습니다", "삭제되었습니다", "초대되었습니다"}
	}
	if len(c.AssignmentHints) == 0 {
		c.AssignmentHints = []string{"담당", "책임자"}
	}
	if len(c.TeamHints) == 0 {
		c.TeamHints = []string{"팀원", "같은 팀"}
	}
	if len(c.ReferentialTokens) == 0 {
		c.ReferentialTokens = []string{"이전에 찾은"}
	}
	if c.FollowUpQuery == "" {
		c.FollowUpQuery = "이전에 찾은 담당자와 같은 팀의 팀원들은 누구인가?"
	}
	if c.CancelledMessage == "" {
		c.CancelledMessage = "취소되었습니다."
	}
	if c.ApologyMessage == "" {
		c.ApologyMessage = "죄송합니다, 요청을 처리하지 못했습니다. 다시 말씀해 주세요."
	}
	return c
}

// OptionsLoader resolves a HITL field's dynamic options source ("user_teams",
// "user_meetings") into concrete select options for the acting user.
type OptionsLoader interface {
	Options(ctx context.Context, source, userID string) ([]Option, error)
}

// Graph runs the orchestration state machine over a tool registry.
type Graph struct {
	llm         llm.Provider
	tools       *tool.Registry
	checkpoints Checkpointer
	options     OptionsLoader
	cfg         Config
	metrics     *observe.Metrics
	now         func() time.Time
}

// GraphOption configures a Graph.
type GraphOption func(*Graph)

// WithOptionsLoader wires the dynamic options source for HITL fields.
func WithOptionsLoader(l OptionsLoader) GraphOption {
	return func(g *Graph) { g.options = l }
}

// WithMetrics overrides the metrics instance, for tests.
func WithMetrics(m *observe.Metrics) GraphOption {
	return func(g *Graph) { g.metrics = m }
}

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) GraphOption {
	return func(g *Graph) { g.now = now }
}

// New creates a graph over the given model, tool catalog, and checkpointer.
func New(provider llm.Provider, tools *tool.Registry, checkpoints Checkpointer, cfg Config, opts ...GraphOption) (*Graph, error) {
	if provider == nil {
		return nil, fmt.Errorf("graph: llm provider must not be nil")
	}
	if tools == nil {
		return nil, fmt.Errorf("graph: tool registry must not be nil")
	}
	if checkpoints == nil {
		return nil, fmt.Errorf("graph: checkpointer must not be nil")
	}
	g := &Graph{
		llm:         provider,
		tools:       tools,
		checkpoints: checkpoints,
		cfg:         cfg.withDefaults(),
		metrics:     observe.DefaultMetrics(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// RunInput describes one agent invocation.
type RunInput struct {
	MeetingID string
	UserID    string
	UserName  string

	// Channel is "voice" or "text"; it shapes the response register.
	Channel string

	Query string

	// QueryClass is the fast pre-router's verdict; empty means general.
	QueryClass string

	// Context is the meeting context snapshot.
	Context string
}

// Start executes a new run, emitting events until it completes or
// interrupts. Returns ErrInterrupted when a mutation awaits confirmation.
func (g *Graph) Start(ctx context.Context, in RunInput, emit Emitter) error {
	st := &State{
		RunID:      uuid.NewString(),
		MeetingID:  in.MeetingID,
		UserID:     in.UserID,
		UserName:   in.UserName,
		Mode:       g.cfg.Mode,
		Channel:    in.Channel,
		Query:      in.Query,
		QueryClass: in.QueryClass,
		Context:    in.Context,
		Step:       StepPlan,
		StartedAt:  g.now(),
	}
	if st.QueryClass == "" {
		st.QueryClass = ClassGeneral
	}
	st.Messages = append(st.Messages, llm.Message{Role: "user", Content: in.Query, Name: in.UserName})

	emit(Event{Kind: EventStatus, Content: "thinking"})
	return g.drive(ctx, st, emit)
}

// Resume continues an interrupted run with the user's confirmation answer.
// Resuming the same run twice after the tool executed does not execute it
// again; the run replays from its post-execution checkpoint.
func (g *Graph) Resume(ctx context.Context, runID string, rv ResumeValue, emit Emitter) error {
	st, err := g.checkpoints.Load(ctx, runID)
	if err != nil {
		return err
	}
	if st.HITL == nil {
		return fmt.Errorf("graph: run %q has no pending confirmation", runID)
	}

	if !st.HITL.Executed && st.HITL.Status == HITLPending {
		if err := g.applyResume(ctx, st, rv, emit); err != nil {
			return err
		}
		// Checkpoint the post-decision state before continuing, so a crash
		// (or a duplicate resume) cannot run the mutation twice.
		if err := g.checkpoints.Save(ctx, st); err != nil {
			slog.Error("failed to checkpoint resumed run", "runID", runID, "error", err)
		}
	}
	return g.drive(ctx, st, emit)
}

// drive advances the state machine until done or interrupted.
func (g *Graph) drive(ctx context.Context, st *State, emit Emitter) error {
	for st.Step != StepDone {
		if err := ctx.Err(); err != nil {
			g.metrics.RecordAgentRun(ctx, "cancelled")
			return fmt.Errorf("graph: %w", err)
		}
		st.Iterations++

		switch st.Step {
		case StepPlan:
			g.plan(ctx, st, emit)
		case StepExecute:
			interrupted, err := g.execute(ctx, st, emit)
			if err != nil {
				g.metrics.RecordAgentRun(ctx, "failed")
				emit(Event{Kind: EventError, Content: err.Error()})
				return err
			}
			if interrupted {
				g.metrics.RecordAgentRun(ctx, "interrupted")
				return ErrInterrupted
			}
		case StepEvaluate:
			g.evaluate(ctx, st)
		case StepRespond:
			g.respond(ctx, st, emit)
			st.Step = StepDone
		default:
			g.metrics.RecordAgentRun(ctx, "failed")
			return fmt.Errorf("graph: unknown step %q", st.Step)
		}
	}

	g.metrics.AgentRunDuration.Record(ctx, g.now().Sub(st.StartedAt).Seconds())
	g.metrics.RecordAgentRun(ctx, "success")
	if err := g.checkpoints.Delete(ctx, st.RunID); err != nil {
		slog.Debug("failed to delete run checkpoint", "runID", st.RunID, "error", err)
	}
	emit(Event{Kind: EventDone})
	return nil
}
