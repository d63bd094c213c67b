package backend

import (
	"context"
	"net/http"
	"time"
)

// Team is a backend team record.
type Team struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	OwnerUserID string `json:"ownerUserId"`
	MemberCount int    `json:"memberCount"`
}

// TeamMember is one membership row of a team.
type TeamMember struct {
	UserID   string    `json:"userId"`
	UserName string    `json:"userName"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// UserProfile is the public profile of a user.
type UserProfile struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Title  string `json:"title,omitempty"`
}

// ActionItem is a task extracted from meetings and assigned to a user.
type ActionItem struct {
	ID         string     `json:"id"`
	MeetingID  string     `json:"meetingId"`
	AssigneeID string     `json:"assigneeId"`
	Content    string     `json:"content"`
	DueDate    *time.Time `json:"dueDate,omitempty"`
	Done       bool       `json:"done"`
}

// MeetingDraft carries the mutable fields of a meeting for create/update.
type MeetingDraft struct {
	Title       string     `json:"title,omitempty"`
	TeamID      string     `json:"teamId,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

// TeamDraft carries the mutable fields of a team for create/update.
type TeamDraft struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Directory is the backend read/write surface behind the agent tools. Every
// call acts as the given user; the backend enforces authorization and maps
// violations to 403.
type Directory interface {
	MeetingsForUser(ctx context.Context, userID string) ([]Meeting, error)
	UpcomingMeetings(ctx context.Context, userID string) ([]Meeting, error)
	MeetingSummary(ctx context.Context, meetingID string) (string, error)
	TeamsForUser(ctx context.Context, userID string) ([]Team, error)
	Team(ctx context.Context, teamID string) (*Team, error)
	TeamMembers(ctx context.Context, teamID string) ([]TeamMember, error)
	UserProfile(ctx context.Context, userID string) (*UserProfile, error)
	ActionItemsByAssignee(ctx context.Context, assigneeID string) ([]ActionItem, error)

	CreateMeeting(ctx context.Context, userID string, draft MeetingDraft) (*Meeting, error)
	UpdateMeeting(ctx context.Context, userID, meetingID string, draft MeetingDraft) error
	DeleteMeeting(ctx context.Context, userID, meetingID string) error
	InviteMeetingParticipant(ctx context.Context, userID, meetingID, inviteeID string) error
	CreateTeam(ctx context.Context, userID string, draft TeamDraft) (*Team, error)
	UpdateTeam(ctx context.Context, userID, teamID string, draft TeamDraft) error
	DeleteTeam(ctx context.Context, userID, teamID string) error
	InviteTeamMember(ctx context.Context, userID, teamID, inviteeID string) error
	TeamInviteLink(ctx context.Context, userID, teamID string) (string, error)
}

var _ Directory = (*Client)(nil)

// asUser stamps the acting user on a server-to-server request path.
func asUser(userID string) string { return "?actingUserId=" + userID }

// MeetingsForUser implements Directory.
func (c *Client) MeetingsForUser(ctx context.Context, userID string) ([]Meeting, error) {
	var out []Meeting
	err := c.doJSON(ctx, http.MethodGet, "/users/"+userID+"/meetings", nil, &out)
	return out, err
}

// UpcomingMeetings implements Directory.
func (c *Client) UpcomingMeetings(ctx context.Context, userID string) ([]Meeting, error) {
	var out []Meeting
	err := c.doJSON(ctx, http.MethodGet, "/users/"+userID+"/meetings?filter=upcoming", nil, &out)
	return out, err
}

// MeetingSummary implements Directory.
func (c *Client) MeetingSummary(ctx context.Context, meetingID string) (string, error) {
	var out struct {
		Summary string `json:"summary"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/meetings/"+meetingID+"/summary", nil, &out)
	return out.Summary, err
}

// TeamsForUser implements Directory.
func (c *Client) TeamsForUser(ctx context.Context, userID string) ([]Team, error) {
	var out []Team
	err := c.doJSON(ctx, http.MethodGet, "/users/"+userID+"/teams", nil, &out)
	return out, err
}

// Team implements Directory.
func (c *Client) Team(ctx context.Context, teamID string) (*Team, error) {
	var out Team
	if err := c.doJSON(ctx, http.MethodGet, "/teams/"+teamID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TeamMembers implements Directory.
func (c *Client) TeamMembers(ctx context.Context, teamID string) ([]TeamMember, error) {
	var out []TeamMember
	err := c.doJSON(ctx, http.MethodGet, "/teams/"+teamID+"/members", nil, &out)
	return out, err
}

// UserProfile implements Directory.
func (c *Client) UserProfile(ctx context.Context, userID string) (*UserProfile, error) {
	var out UserProfile
	if err := c.doJSON(ctx, http.MethodGet, "/users/"+userID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActionItemsByAssignee implements Directory.
func (c *Client) ActionItemsByAssignee(ctx context.Context, assigneeID string) ([]ActionItem, error) {
	var out []ActionItem
	err := c.doJSON(ctx, http.MethodGet, "/users/"+assigneeID+"/action-items", nil, &out)
	return out, err
}

// CreateMeeting implements Directory.
func (c *Client) CreateMeeting(ctx context.Context, userID string, draft MeetingDraft) (*Meeting, error) {
	var out Meeting
	if err := c.doJSON(ctx, http.MethodPost, "/meetings"+asUser(userID), draft, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMeeting implements Directory.
func (c *Client) UpdateMeeting(ctx context.Context, userID, meetingID string, draft MeetingDraft) error {
	return c.doJSON(ctx, http.MethodPatch, "/meetings/"+meetingID+asUser(userID), draft, nil)
}

// DeleteMeeting implements Directory.
func (c *Client) DeleteMeeting(ctx context.Context, userID, meetingID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/meetings/"+meetingID+asUser(userID), nil, nil)
}

// InviteMeetingParticipant implements Directory.
func (c *Client) InviteMeetingParticipant(ctx context.Context, userID, meetingID, inviteeID string) error {
	body := map[string]string{"userId": inviteeID}
	return c.doJSON(ctx, http.MethodPost, "/meetings/"+meetingID+"/participants"+asUser(userID), body, nil)
}

// CreateTeam implements Directory.
func (c *Client) CreateTeam(ctx context.Context, userID string, draft TeamDraft) (*Team, error) {
	var out Team
	if err := c.doJSON(ctx, http.MethodPost, "/teams"+asUser(userID), draft, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTeam implements Directory.
func (c *Client) UpdateTeam(ctx context.Context, userID, teamID string, draft TeamDraft) error {
	return c.doJSON(ctx, http.MethodPatch, "/teams/"+teamID+asUser(userID), draft, nil)
}

// DeleteTeam implements Directory.
func (c *Client) DeleteTeam(ctx context.Context, userID, teamID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/teams/"+teamID+asUser(userID), nil, nil)
}

// InviteTeamMember implements Directory.
func (c *Client) InviteTeamMember(ctx context.Context, userID, teamID, inviteeID string) error {
	body := map[string]string{"userId": inviteeID}
	return c.doJSON(ctx, http.MethodPost, "/teams/"+teamID+"/members"+asUser(userID), body, nil)
}

// TeamInviteLink implements Directory.
func (c *Client) TeamInviteLink(ctx context.Context, userID, teamID string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/teams/"+teamID+"/invite-link"+asUser(userID), nil, &out)
	return out.URL, err
}
