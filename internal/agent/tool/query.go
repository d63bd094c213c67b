package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/moyeo-ai/moyeo/internal/backend"
	"github.com/moyeo-ai/moyeo/internal/kg"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// Markers embedded in query tool output. The planner and evaluator key off
// these to recognise search rounds without re-parsing structured data.
const (
	// SearchResultHeader opens every non-empty knowledge-graph search result.
	SearchResultHeader = "검색 결과"

	// NoSearchResults is returned when a search matches nothing.
	NoSearchResults = "검색 결과가 없습니다."
)

const defaultSearchTopK = 5

// RegisterQueryTools binds the read-only tools over the backend directory,
// the transcript store, and the knowledge graph. Query tools are available
// in every agent mode.
func RegisterQueryTools(r *Registry, dir backend.Directory, store backend.Store, repo kg.Repository) error {
	tools := []Tool{
		{
			Name:        "meeting_list",
			Description: "사용자가 참여한 회의 목록을 조회합니다.",
			Category:    CategoryQuery,
			Params:      objectSchema(nil, map[string]any{}),
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				meetings, err := dir.MeetingsForUser(ctx, inv.UserID)
				if err != nil {
					return "", err
				}
				return formatMeetings(meetings, "참여한 회의가 없습니다."), nil
			},
		},
		{
			Name:        "upcoming_meetings",
			Description: "예정된 회의 목록을 조회합니다.",
			Category:    CategoryQuery,
			Params:      objectSchema(nil, map[string]any{}),
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				meetings, err := dir.UpcomingMeetings(ctx, inv.UserID)
				if err != nil {
					return "", err
				}
				return formatMeetings(meetings, "예정된 회의가 없습니다."), nil
			},
		},
		{
			Name:        "meeting_detail",
			Description: "회의 하나의 상세 정보를 조회합니다.",
			Category:    CategoryQuery,
			Params: objectSchema([]string{"meeting_id"}, map[string]any{
				"meeting_id": prop("조회할 회의 ID"),
			}),
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				m, err := store.Meeting(ctx, StringArg(inv.Args, "meeting_id"))
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("회의 %q (상태: %s, 최대 인원: %d)", m.Title, m.Status, m.MaxParticipants), nil
			},
		},
		{
			Name:        "meeting_summary",
			Description: "회의의 요약본을 조회합니다.",
			Category:    CategoryQuery,
			Params: objectSchema([]string{"meeting_id"}, map[string]any{
				"meeting_id": prop("요약을 조회할 회의 ID"),
			}),
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				summary, err := dir.MeetingSummary(ctx, StringArg(inv.Args, "meeting_id"))
				if err != nil {
					return "", err
				}
				if summary == "" {
					return "아직 요약이 생성되지 않았습니다.", nil
				}
				return summary, nil
			},
		},
		{
			Name:        "meeting_transcript",
			Description: "회의의 전체 대화 기록을 조회합니다.",
			Category:    CategoryQuery,
			Params: objectSchema([]string{"meeting_id"}, map[string]any{
				"meeting_id": prop("대화 기록을 조회할 회의 ID"),
			}),
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				utterances, err := store.TranscriptSince(ctx, StringArg(inv.Args, "meeting_id"), 0)
				if err != nil {
					return "", err
				}
				if len(utterances) == 0 {
					return "대화 기록이 없습니다.", nil
				}
				return formatUtterances(utterances), nil
			},
		},
		{
			Name:        "my_teams",
			Description: "사용자가 속한 팀 목록을 조회합니다.",
			Category:    CategoryQuery,
			Params:      objectSchema(nil, map[string]any{}),
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				teams, err := dir.TeamsForUser(ctx, inv.UserID)
				if err != nil {
					return "", err
				}
				if len(teams) == 0 {
					return "속한 팀이 없습니다.", nil
				}
				var sb strings.Builder
				for _, t := range teams {
					fmt.Fprintf(&sb, "- %s (%d명)\n", t.Name, t.MemberCount)
				}
				return sb.String(), nil
			},
		},
		{
			Name:        "team_detail",
			Description: "팀 하나의 상세 정보를 조회합니다.",
			Category:    CategoryQuery,
			Params: objectSchema([]string{"team_id"}, map[string]any{
				"team_id": prop("조회할 팀 ID"),
			}),
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				t, err := dir.Team(ctx, StringArg(inv.Args, "team_id"))
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("팀 %q: %s (%d명)", t.Name, t.Description, t.MemberCount), nil
			},
		},
		{
			Name:        "team_members",
			Description: "팀의 구성원 목록을 조회합니다.",
			Category:    CategoryQuery,
			Params: objectSchema([]string{"team_id"}, map[string]any{
				"team_id": prop("구성원을 조회할 팀 ID"),
			}),
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				members, err := dir.TeamMembers(ctx, StringArg(inv.Args, "team_id"))
				if err != nil {
					return "", err
				}
				if len(members) == 0 {
					return "팀에 구성원이 없습니다.", nil
				}
				var sb strings.Builder
				for _, m := range members {
					fmt.Fprintf(&sb, "- %s (%s)\n", m.UserName, m.Role)
				}
				return sb.String(), nil
			},
		},
		{
			Name:        "user_profile",
			Description: "사용자의 프로필을 조회합니다.",
			Category:    CategoryQuery,
			Params: objectSchema(nil, map[string]any{
				"user_id": prop("조회할 사용자 ID. 비우면 본인"),
			}),
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				id := StringArg(inv.Args, "user_id")
				if id == "" {
					id = inv.UserID
				}
				p, err := dir.UserProfile(ctx, id)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%s (%s) %s", p.Name, p.Title, p.Email), nil
			},
		},
		{
			Name:        "action_items",
			Description: "담당자에게 배정된 액션 아이템 목록을 조회합니다.",
			Category:    CategoryQuery,
			Params: objectSchema(nil, map[string]any{
				"assignee_id": prop("담당자 사용자 ID. 비우면 본인"),
			}),
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				id := StringArg(inv.Args, "assignee_id")
				if id == "" {
					id = inv.UserID
				}
				items, err := dir.ActionItemsByAssignee(ctx, id)
				if err != nil {
					return "", err
				}
				if len(items) == 0 {
					return "배정된 액션 아이템이 없습니다.", nil
				}
				var sb strings.Builder
				for _, it := range items {
					state := "진행 중"
					if it.Done {
						state = "완료"
					}
					fmt.Fprintf(&sb, "- %s [%s]\n", it.Content, state)
				}
				return sb.String(), nil
			},
		},
		{
			Name:        "team_ground_truth",
			Description: "팀의 최신 의사결정(그라운드 트루스) 목록을 조회합니다.",
			Category:    CategoryQuery,
			Params: objectSchema([]string{"team_id"}, map[string]any{
				"team_id": prop("조회할 팀 ID"),
				"limit":   map[string]any{"type": "integer", "description": "최대 건수"},
			}),
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				decisions, err := repo.TeamGroundTruth(ctx, StringArg(inv.Args, "team_id"), IntArg(inv.Args, "limit", 10))
				if err != nil {
					return "", err
				}
				if len(decisions) == 0 {
					return "기록된 의사결정이 없습니다.", nil
				}
				var sb strings.Builder
				for _, d := range decisions {
					fmt.Fprintf(&sb, "- %s: %s", d.Title, d.Content)
					if d.AssigneeName != "" {
						fmt.Fprintf(&sb, " (담당자: %s)", d.AssigneeName)
					}
					sb.WriteString("\n")
				}
				return sb.String(), nil
			},
		},
		{
			Name:        "kg_search",
			Description: "팀 지식 그래프에서 의사결정과 액션을 의미 기반으로 검색합니다.",
			Category:    CategoryQuery,
			Params: objectSchema([]string{"query"}, map[string]any{
				"query":   prop("검색 질의"),
				"team_id": prop("검색 범위를 한정할 팀 ID. 비우면 전체"),
			}),
			Handler: func(ctx context.Context, inv Invocation) (string, error) {
				results, err := repo.SearchDecisions(ctx,
					StringArg(inv.Args, "team_id"), StringArg(inv.Args, "query"), defaultSearchTopK)
				if err != nil {
					return "", err
				}
				return FormatSearchResults(results), nil
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

// FormatSearchResults renders knowledge-graph hits under the search header
// the planner and evaluator recognise.
func FormatSearchResults(results []kg.SearchResult) string {
	if len(results) == 0 {
		return NoSearchResults
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%d건):\n", SearchResultHeader, len(results))
	for _, res := range results {
		fmt.Fprintf(&sb, "- %s: %s", res.Title, res.Content)
		if res.AssigneeName != "" {
			fmt.Fprintf(&sb, " (담당자: %s)", res.AssigneeName)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatMeetings(meetings []backend.Meeting, empty string) string {
	if len(meetings) == 0 {
		return empty
	}
	var sb strings.Builder
	for _, m := range meetings {
		fmt.Fprintf(&sb, "- %s (%s)\n", m.Title, m.Status)
	}
	return sb.String()
}

func formatUtterances(utterances []meet.Utterance) string {
	var sb strings.Builder
	for _, u := range utterances {
		name := u.SpeakerName
		if name == "" {
			name = u.SpeakerID
		}
		fmt.Fprintf(&sb, "[%s]: %s\n", name, u.Text)
	}
	return sb.String()
}
