package agent

import (
	"context"
	"fmt"

	"github.com/moyeo-ai/moyeo/internal/agent/graph"
	"github.com/moyeo-ai/moyeo/internal/agent/tool"
	"github.com/moyeo-ai/moyeo/internal/backend"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// DirectoryOptions resolves the dynamic option sources of confirmation
// fields against the product backend, scoped to the acting user.
type DirectoryOptions struct {
	dir backend.Directory
}

var _ graph.OptionsLoader = (*DirectoryOptions)(nil)

// NewDirectoryOptions creates the loader over dir.
func NewDirectoryOptions(dir backend.Directory) *DirectoryOptions {
	return &DirectoryOptions{dir: dir}
}

// Options implements graph.OptionsLoader.
func (o *DirectoryOptions) Options(ctx context.Context, source, userID string) ([]graph.Option, error) {
	switch source {
	case tool.OptionsUserTeams:
		teams, err := o.dir.TeamsForUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("agent: load team options: %w", err)
		}
		out := make([]graph.Option, len(teams))
		for i, t := range teams {
			out[i] = graph.Option{Value: t.ID, Label: t.Name}
		}
		return out, nil
	case tool.OptionsUserMeetings:
		meetings, err := o.dir.MeetingsForUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("agent: load meeting options: %w", err)
		}
		out := make([]graph.Option, len(meetings))
		for i, m := range meetings {
			out[i] = graph.Option{Value: m.ID, Label: m.Title}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("agent: %w: unknown options source %q", meet.ErrInvalidInput, source)
	}
}
