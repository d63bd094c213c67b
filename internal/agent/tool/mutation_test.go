package tool

import (
	"strings"
	"testing"

	backendmock "github.com/moyeo-ai/moyeo/internal/backend/mock"
)

func newMutationRegistry(t *testing.T, dir *backendmock.Directory) *Registry {
	t.Helper()
	r := NewRegistry()
	if err := RegisterMutationTools(r, dir); err != nil {
		t.Fatalf("RegisterMutationTools: %v", err)
	}
	return r
}

func TestMutationToolsSpotlightOnly(t *testing.T) {
	r := newMutationRegistry(t, &backendmock.Directory{})

	want := []string{
		"create_meeting", "update_meeting", "delete_meeting", "invite_meeting_participant",
		"create_team", "update_team", "delete_team", "invite_team_member", "team_invite_link",
	}
	for _, name := range want {
		tl, ok := r.Get(name)
		if !ok {
			t.Errorf("tool %q missing", name)
			continue
		}
		if tl.Category != CategoryMutation {
			t.Errorf("tool %q category = %q, want mutation", name, tl.Category)
		}
		if tl.AllowedIn(ModeVoice) {
			t.Errorf("mutation %q available in voice mode", name)
		}
		if !tl.AllowedIn(ModeSpotlight) {
			t.Errorf("mutation %q unavailable in spotlight mode", name)
		}
		if tl.DisplayTemplate == "" || tl.ConfirmationMessage == "" {
			t.Errorf("mutation %q missing confirmation metadata", name)
		}
		if len(tl.HITLFields) == 0 {
			t.Errorf("mutation %q has no HITL fields", name)
		}
	}
}

func TestCreateTeamSuccessMarker(t *testing.T) {
	dir := &backendmock.Directory{}
	r := newMutationRegistry(t, dir)

	out := invoke(t, r, "create_team", "u1", map[string]any{"name": "신규 팀"})
	if !strings.Contains(out, "생성되었습니다") {
		t.Fatalf("create_team result %q missing success marker", out)
	}
	if dir.MutationCount() != 1 {
		t.Fatalf("mutation count = %d, want 1", dir.MutationCount())
	}
}

func TestUpdateAndDeleteMarkers(t *testing.T) {
	dir := &backendmock.Directory{}
	r := newMutationRegistry(t, dir)

	invoke(t, r, "create_team", "u1", map[string]any{"name": "임시 팀"})

	teamID := ""
	if teams, err := dir.TeamsForUser(t.Context(), "u1"); err == nil && len(teams) > 0 {
		teamID = teams[0].ID
	}

	out := invoke(t, r, "update_team", "u1", map[string]any{"team_id": teamID, "name": "새 이름"})
	if !strings.Contains(out, "수정되었습니다") {
		t.Fatalf("update result %q missing marker", out)
	}
	out = invoke(t, r, "delete_team", "u1", map[string]any{"team_id": teamID})
	if !strings.Contains(out, "삭제되었습니다") {
		t.Fatalf("delete result %q missing marker", out)
	}
}

func TestCreateMeetingRejectsBadTimestamp(t *testing.T) {
	r := newMutationRegistry(t, &backendmock.Directory{})
	tl, _ := r.Get("create_meeting")
	_, err := tl.Handler(t.Context(), Invocation{UserID: "u1", Args: map[string]any{
		"title":        "회의",
		"scheduled_at": "내일 오후",
	}})
	if err == nil {
		t.Fatal("invalid scheduled_at accepted")
	}
}

func TestTeamFieldsUseDynamicOptions(t *testing.T) {
	r := newMutationRegistry(t, &backendmock.Directory{})
	tl, _ := r.Get("delete_team")

	var teamField *HITLField
	for i := range tl.HITLFields {
		if tl.HITLFields[i].Name == "team_id" {
			teamField = &tl.HITLFields[i]
		}
	}
	if teamField == nil {
		t.Fatal("delete_team has no team_id field")
	}
	if teamField.OptionsSource != OptionsUserTeams {
		t.Fatalf("team_id options source = %q, want %q", teamField.OptionsSource, OptionsUserTeams)
	}
	if teamField.InputType != "select" {
		t.Fatalf("team_id input type = %q, want select", teamField.InputType)
	}
}
