package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/moyeo-ai/moyeo/internal/backend"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// Directory is a fixture-backed backend.Directory. Zero value is usable.
// Mutations are recorded in Mutations as "verb:target" strings so tests can
// assert call order without reimplementing the backend.
type Directory struct {
	mu sync.Mutex

	Meetings    []backend.Meeting
	Upcoming    []backend.Meeting
	Teams       []backend.Team
	Members     map[string][]backend.TeamMember // by team ID
	Profiles    map[string]backend.UserProfile
	ActionItems []backend.ActionItem
	Summaries   map[string]string // by meeting ID

	// Err, when set, is returned by every method.
	Err error

	// Mutations records every write call, in order.
	Mutations []string

	nextID int
}

var _ backend.Directory = (*Directory)(nil)

func (d *Directory) record(s string) {
	d.Mutations = append(d.Mutations, s)
}

func (d *Directory) MeetingsForUser(_ context.Context, _ string) ([]backend.Meeting, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	return append([]backend.Meeting(nil), d.Meetings...), nil
}

func (d *Directory) UpcomingMeetings(_ context.Context, _ string) ([]backend.Meeting, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	return append([]backend.Meeting(nil), d.Upcoming...), nil
}

func (d *Directory) MeetingSummary(_ context.Context, meetingID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return "", d.Err
	}
	s, ok := d.Summaries[meetingID]
	if !ok {
		return "", fmt.Errorf("mock: %w: summary for meeting %q", meet.ErrNotFound, meetingID)
	}
	return s, nil
}

func (d *Directory) TeamsForUser(_ context.Context, _ string) ([]backend.Team, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	return append([]backend.Team(nil), d.Teams...), nil
}

func (d *Directory) Team(_ context.Context, teamID string) (*backend.Team, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	for _, t := range d.Teams {
		if t.ID == teamID {
			tt := t
			return &tt, nil
		}
	}
	return nil, fmt.Errorf("mock: %w: team %q", meet.ErrNotFound, teamID)
}

func (d *Directory) TeamMembers(_ context.Context, teamID string) ([]backend.TeamMember, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	return append([]backend.TeamMember(nil), d.Members[teamID]...), nil
}

func (d *Directory) UserProfile(_ context.Context, userID string) (*backend.UserProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	p, ok := d.Profiles[userID]
	if !ok {
		return nil, fmt.Errorf("mock: %w: user %q", meet.ErrNotFound, userID)
	}
	return &p, nil
}

func (d *Directory) ActionItemsByAssignee(_ context.Context, assigneeID string) ([]backend.ActionItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	var out []backend.ActionItem
	for _, it := range d.ActionItems {
		if it.AssigneeID == assigneeID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (d *Directory) CreateMeeting(_ context.Context, userID string, draft backend.MeetingDraft) (*backend.Meeting, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	d.nextID++
	m := backend.Meeting{
		ID:         fmt.Sprintf("meeting-%d", d.nextID),
		Title:      draft.Title,
		Status:     meet.MeetingScheduled,
		HostUserID: userID,
	}
	d.Meetings = append(d.Meetings, m)
	d.record("create-meeting:" + m.ID)
	return &m, nil
}

func (d *Directory) UpdateMeeting(_ context.Context, _, meetingID string, draft backend.MeetingDraft) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	for i := range d.Meetings {
		if d.Meetings[i].ID == meetingID {
			if draft.Title != "" {
				d.Meetings[i].Title = draft.Title
			}
			d.record("update-meeting:" + meetingID)
			return nil
		}
	}
	return fmt.Errorf("mock: %w: meeting %q", meet.ErrNotFound, meetingID)
}

func (d *Directory) DeleteMeeting(_ context.Context, _, meetingID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	for i := range d.Meetings {
		if d.Meetings[i].ID == meetingID {
			d.Meetings = append(d.Meetings[:i], d.Meetings[i+1:]...)
			d.record("delete-meeting:" + meetingID)
			return nil
		}
	}
	return fmt.Errorf("mock: %w: meeting %q", meet.ErrNotFound, meetingID)
}

func (d *Directory) InviteMeetingParticipant(_ context.Context, _, meetingID, inviteeID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.record("invite-participant:" + meetingID + ":" + inviteeID)
	return nil
}

func (d *Directory) CreateTeam(_ context.Context, userID string, draft backend.TeamDraft) (*backend.Team, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	d.nextID++
	t := backend.Team{
		ID:          fmt.Sprintf("team-%d", d.nextID),
		Name:        draft.Name,
		Description: draft.Description,
		OwnerUserID: userID,
		MemberCount: 1,
	}
	d.Teams = append(d.Teams, t)
	d.record("create-team:" + t.ID)
	return &t, nil
}

func (d *Directory) UpdateTeam(_ context.Context, _, teamID string, draft backend.TeamDraft) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	for i := range d.Teams {
		if d.Teams[i].ID == teamID {
			if draft.Name != "" {
				d.Teams[i].Name = draft.Name
			}
			if draft.Description != "" {
				d.Teams[i].Description = draft.Description
			}
			d.record("update-team:" + teamID)
			return nil
		}
	}
	return fmt.Errorf("mock: %w: team %q", meet.ErrNotFound, teamID)
}

func (d *Directory) DeleteTeam(_ context.Context, _, teamID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	for i := range d.Teams {
		if d.Teams[i].ID == teamID {
			d.Teams = append(d.Teams[:i], d.Teams[i+1:]...)
			d.record("delete-team:" + teamID)
			return nil
		}
	}
	return fmt.Errorf("mock: %w: team %q", meet.ErrNotFound, teamID)
}

func (d *Directory) InviteTeamMember(_ context.Context, _, teamID, inviteeID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.record("invite-member:" + teamID + ":" + inviteeID)
	return nil
}

func (d *Directory) TeamInviteLink(_ context.Context, _, teamID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return "", d.Err
	}
	d.record("invite-link:" + teamID)
	return "https://moyeo.example/invite/" + teamID, nil
}

// MutationCount returns how many write calls were recorded.
func (d *Directory) MutationCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Mutations)
}
