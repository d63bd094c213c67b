package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/moyeo-ai/moyeo/internal/backend"
)

// Dynamic option sources resolved by the executor at interrupt time.
const (
	OptionsUserTeams    = "user_teams"
	OptionsUserMeetings = "user_meetings"
)

// RegisterMutationTools binds the state-changing tools over the backend
// directory. Every mutation is spotlight-only and goes through the
// human-in-the-loop confirmation before its handler runs.
func RegisterMutationTools(r *Registry, dir backend.Directory) error {
	spotlight := []Mode{ModeSpotlight}

	tools := []Tool{
		{
			Name:        "create_meeting",
			Description: "새 회의를 생성합니다.",
			Category:    CategoryMutation,
			Modes:       spotlight,
			Params: objectSchema([]string{"title"}, map[string]any{
				"title":        prop("회의 제목"),
				"team_id":      prop("회의를 소유할 팀 ID"),
				"scheduled_at": prop("회의 시작 시각 (RFC3339)"),
			}),
			DisplayTemplate:     "{{title}} 회의를 생성합니다",
			ConfirmationMessage: "이 회의를 생성할까요?",
			HITLFields: []HITLField{
				{Name: "title", Description: "회의 제목", Type: "string", Required: true, InputType: "text", Placeholder: "회의 제목을 입력하세요"},
				{Name: "team_id", Description: "소속 팀", Type: "uuid", InputType: "select", OptionsSource: OptionsUserTeams},
				{Name: "scheduled_at", Description: "시작 시각", Type: "datetime", InputType: "datetime", Placeholder: "시작 시각"},
			},
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				draft := backend.MeetingDraft{
					Title:  StringArg(inv.Args, "title"),
					TeamID: StringArg(inv.Args, "team_id"),
				}
				if at := StringArg(inv.Args, "scheduled_at"); at != "" {
					t, err := time.Parse(time.RFC3339, at)
					if err != nil {
						return "", fmt.Errorf("tool: invalid scheduled_at: %w", err)
					}
					draft.ScheduledAt = &t
				}
				m, err := dir.CreateMeeting(ctx, inv.UserID, draft)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("회의 %q이(가) 생성되었습니다.", m.Title), nil
			},
		},
		{
			Name:        "update_meeting",
			Description: "회의 정보를 수정합니다.",
			Category:    CategoryMutation,
			Modes:       spotlight,
			Params: objectSchema([]string{"meeting_id"}, map[string]any{
				"meeting_id":   prop("수정할 회의 ID"),
				"title":        prop("새 제목"),
				"scheduled_at": prop("새 시작 시각 (RFC3339)"),
			}),
			DisplayTemplate:     "{{meeting_id}} 회의를 수정합니다",
			ConfirmationMessage: "이 회의를 수정할까요?",
			HITLFields: []HITLField{
				{Name: "meeting_id", Description: "대상 회의", Type: "uuid", Required: true, InputType: "select", OptionsSource: OptionsUserMeetings},
				{Name: "title", Description: "새 제목", Type: "string", InputType: "text", Placeholder: "새 제목"},
				{Name: "scheduled_at", Description: "새 시작 시각", Type: "datetime", InputType: "datetime"},
			},
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				draft := backend.MeetingDraft{Title: StringArg(inv.Args, "title")}
				if at := StringArg(inv.Args, "scheduled_at"); at != "" {
					t, err := time.Parse(time.RFC3339, at)
					if err != nil {
						return "", fmt.Errorf("tool: invalid scheduled_at: %w", err)
					}
					draft.ScheduledAt = &t
				}
				if err := dir.UpdateMeeting(ctx, inv.UserID, StringArg(inv.Args, "meeting_id"), draft); err != nil {
					return "", err
				}
				return "회의가 수정되었습니다.", nil
			},
		},
		{
			Name:        "delete_meeting",
			Description: "회의를 삭제합니다.",
			Category:    CategoryMutation,
			Modes:       spotlight,
			Params: objectSchema([]string{"meeting_id"}, map[string]any{
				"meeting_id": prop("삭제할 회의 ID"),
			}),
			DisplayTemplate:     "{{meeting_id}} 회의를 삭제합니다",
			ConfirmationMessage: "이 회의를 삭제할까요? 되돌릴 수 없습니다.",
			HITLFields: []HITLField{
				{Name: "meeting_id", Description: "대상 회의", Type: "uuid", Required: true, InputType: "select", OptionsSource: OptionsUserMeetings},
			},
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				if err := dir.DeleteMeeting(ctx, inv.UserID, StringArg(inv.Args, "meeting_id")); err != nil {
					return "", err
				}
				return "회의가 삭제되었습니다.", nil
			},
		},
		{
			Name:        "invite_meeting_participant",
			Description: "회의에 참가자를 초대합니다.",
			Category:    CategoryMutation,
			Modes:       spotlight,
			Params: objectSchema([]string{"meeting_id", "user_id"}, map[string]any{
				"meeting_id": prop("초대할 회의 ID"),
				"user_id":    prop("초대할 사용자 ID"),
			}),
			DisplayTemplate:     "{{user_id}} 님을 회의에 초대합니다",
			ConfirmationMessage: "이 사용자를 회의에 초대할까요?",
			HITLFields: []HITLField{
				{Name: "meeting_id", Description: "대상 회의", Type: "uuid", Required: true, InputType: "select", OptionsSource: OptionsUserMeetings},
				{Name: "user_id", Description: "초대할 사용자", Type: "uuid", Required: true, InputType: "text", Placeholder: "사용자 ID"},
			},
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				err := dir.InviteMeetingParticipant(ctx, inv.UserID,
					StringArg(inv.Args, "meeting_id"), StringArg(inv.Args, "user_id"))
				if err != nil {
					return "", err
				}
				return "참가자가 초대되었습니다.", nil
			},
		},
		{
			Name:        "create_team",
			Description: "새 팀을 생성합니다.",
			Category:    CategoryMutation,
			Modes:       spotlight,
			Params: objectSchema([]string{"name"}, map[string]any{
				"name":        prop("팀 이름"),
				"description": prop("팀 설명"),
			}),
			DisplayTemplate:     "{{name}} 팀을 생성합니다",
			ConfirmationMessage: "이 팀을 생성할까요?",
			HITLFields: []HITLField{
				{Name: "name", Description: "팀 이름", Type: "string", Required: true, InputType: "text", Placeholder: "팀 이름"},
				{Name: "description", Description: "팀 설명", Type: "string", InputType: "text", Placeholder: "팀 설명"},
			},
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				t, err := dir.CreateTeam(ctx, inv.UserID, backend.TeamDraft{
					Name:        StringArg(inv.Args, "name"),
					Description: StringArg(inv.Args, "description"),
				})
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("팀 %q이(가) 생성되었습니다.", t.Name), nil
			},
		},
		{
			Name:        "update_team",
			Description: "팀 정보를 수정합니다.",
			Category:    CategoryMutation,
			Modes:       spotlight,
			Params: objectSchema([]string{"team_id"}, map[string]any{
				"team_id":     prop("수정할 팀 ID"),
				"name":        prop("새 이름"),
				"description": prop("새 설명"),
			}),
			DisplayTemplate:     "{{team_id}} 팀을 수정합니다",
			ConfirmationMessage: "이 팀을 수정할까요?",
			HITLFields: []HITLField{
				{Name: "team_id", Description: "대상 팀", Type: "uuid", Required: true, InputType: "select", OptionsSource: OptionsUserTeams},
				{Name: "name", Description: "새 이름", Type: "string", InputType: "text"},
				{Name: "description", Description: "새 설명", Type: "string", InputType: "text"},
			},
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				err := dir.UpdateTeam(ctx, inv.UserID, StringArg(inv.Args, "team_id"), backend.TeamDraft{
					Name:        StringArg(inv.Args, "name"),
					Description: StringArg(inv.Args, "description"),
				})
				if err != nil {
					return "", err
				}
				return "팀 정보가 수정되었습니다.", nil
			},
		},
		{
			Name:        "delete_team",
			Description: "팀을 삭제합니다.",
			Category:    CategoryMutation,
			Modes:       spotlight,
			Params: objectSchema([]string{"team_id"}, map[string]any{
				"team_id": prop("삭제할 팀 ID"),
			}),
			DisplayTemplate:     "{{team_id}} 팀을 삭제합니다",
			ConfirmationMessage: "이 팀을 삭제할까요? 되돌릴 수 없습니다.",
			HITLFields: []HITLField{
				{Name: "team_id", Description: "대상 팀", Type: "uuid", Required: true, InputType: "select", OptionsSource: OptionsUserTeams},
			},
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				if err := dir.DeleteTeam(ctx, inv.UserID, StringArg(inv.Args, "team_id")); err != nil {
					return "", err
				}
				return "팀이 삭제되었습니다.", nil
			},
		},
		{
			Name:        "invite_team_member",
			Description: "팀에 구성원을 초대합니다.",
			Category:    CategoryMutation,
			Modes:       spotlight,
			Params: objectSchema([]string{"team_id", "user_id"}, map[string]any{
				"team_id": prop("초대할 팀 ID"),
				"user_id": prop("초대할 사용자 ID"),
			}),
			DisplayTemplate:     "{{user_id}} 님을 팀에 초대합니다",
			ConfirmationMessage: "이 사용자를 팀에 초대할까요?",
			HITLFields: []HITLField{
				{Name: "team_id", Description: "대상 팀", Type: "uuid", Required: true, InputType: "select", OptionsSource: OptionsUserTeams},
				{Name: "user_id", Description: "초대할 사용자", Type: "uuid", Required: true, InputType: "text", Placeholder: "사용자 ID"},
			},
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				err := dir.InviteTeamMember(ctx, inv.UserID,
					StringArg(inv.Args, "team_id"), StringArg(inv.Args, "user_id"))
				if err != nil {
					return "", err
				}
				return "구성원이 초대되었습니다.", nil
			},
		},
		{
			Name:        "team_invite_link",
			Description: "팀 초대 링크를 생성합니다.",
			Category:    CategoryMutation,
			Modes:       spotlight,
			Params: objectSchema([]string{"team_id"}, map[string]any{
				"team_id": prop("초대 링크를 만들 팀 ID"),
			}),
			DisplayTemplate:     "{{team_id}} 팀의 초대 링크를 생성합니다",
			ConfirmationMessage: "초대 링크를 생성할까요?",
			HITLFields: []HITLField{
				{Name: "team_id", Description: "대상 팀", Type: "uuid", Required: true, InputType: "select", OptionsSource: OptionsUserTeams},
			},
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				link, err := dir.TeamInviteLink(ctx, inv.UserID, StringArg(inv.Args, "team_id"))
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("초대 링크가 생성되었습니다: %s", link), nil
			},
		},
	}

	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
