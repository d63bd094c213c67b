package kg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/moyeo-ai/moyeo/pkg/embeddings"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// PostgresRepository implements [Repository] over the shared knowledge-graph
// tables. Decision embeddings are written by the graph service; this side
// only embeds queries.
type PostgresRepository struct {
	pool  *pgxpool.Pool
	embed embeddings.Provider
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates the read-only repository. embed may be nil;
// SearchDecisions then falls back to lexical matching on title and content.
func NewPostgresRepository(pool *pgxpool.Pool, embed embeddings.Provider) *PostgresRepository {
	return &PostgresRepository{pool: pool, embed: embed}
}

const decisionColumns = `
	d.id, d.team_id, d.title, d.content, d.status,
	COALESCE(d.assignee_id, ''), COALESCE(u.name, ''),
	COALESCE(d.source_meeting_id, ''), d.created_at, d.updated_at`

const decisionFrom = `
	FROM decisions d
	LEFT JOIN users u ON u.id = d.assignee_id`

func scanDecision(row pgx.CollectableRow) (Decision, error) {
	var d Decision
	err := row.Scan(&d.ID, &d.TeamID, &d.Title, &d.Content, &d.Status,
		&d.AssigneeID, &d.AssigneeName, &d.SourceMeetingID, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// SearchDecisions implements [Repository]. With an embeddings provider the
// query is embedded and matched by cosine distance against the decisions'
// pgvector column; otherwise a case-insensitive substring match is used.
func (r *PostgresRepository) SearchDecisions(ctx context.Context, teamID, query string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	if r.embed == nil {
		return r.searchLexical(ctx, teamID, query, topK)
	}

	vec, err := r.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("kg: %w: embed query: %v", meet.ErrExternal, err)
	}

	args := []any{pgvector.NewVector(vec)}
	where := ""
	if teamID != "" {
		args = append(args, teamID)
		where = "WHERE d.team_id = $2"
	}
	args = append(args, topK)

	q := fmt.Sprintf(`
		SELECT %s, 1 - (d.embedding <=> $1) AS score
		%s
		%s
		ORDER BY d.embedding <=> $1
		LIMIT $%d`, decisionColumns, decisionFrom, where, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("kg: search decisions: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SearchResult, error) {
		var (
			sr SearchResult
			d  Decision
		)
		err := row.Scan(&d.ID, &d.TeamID, &d.Title, &d.Content, &d.Status,
			&d.AssigneeID, &d.AssigneeName, &d.SourceMeetingID, &d.CreatedAt, &d.UpdatedAt,
			&sr.Score)
		sr.Decision = d
		return sr, err
	})
	if err != nil {
		return nil, fmt.Errorf("kg: search decisions: %w", err)
	}
	return results, nil
}

func (r *PostgresRepository) searchLexical(ctx context.Context, teamID, query string, topK int) ([]SearchResult, error) {
	args := []any{"%" + query + "%"}
	where := "WHERE (d.title ILIKE $1 OR d.content ILIKE $1)"
	if teamID != "" {
		args = append(args, teamID)
		where += " AND d.team_id = $2"
	}
	args = append(args, topK)

	q := fmt.Sprintf(`
		SELECT %s
		%s
		%s
		ORDER BY d.updated_at DESC
		LIMIT $%d`, decisionColumns, decisionFrom, where, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("kg: lexical search: %w", err)
	}
	decisions, err := pgx.CollectRows(rows, scanDecision)
	if err != nil {
		return nil, fmt.Errorf("kg: lexical search: %w", err)
	}

	results := make([]SearchResult, len(decisions))
	for i, d := range decisions {
		results[i] = SearchResult{Decision: d}
	}
	return results, nil
}

// DecisionByID implements [Repository].
func (r *PostgresRepository) DecisionByID(ctx context.Context, id string) (*Decision, error) {
	q := fmt.Sprintf(`SELECT %s %s WHERE d.id = $1`, decisionColumns, decisionFrom)

	rows, err := r.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("kg: get decision: %w", err)
	}
	d, err := pgx.CollectOneRow(rows, scanDecision)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("kg: %w: decision %s", meet.ErrNotFound, id)
		}
		return nil, fmt.Errorf("kg: get decision: %w", err)
	}
	return &d, nil
}

// TeamGroundTruth implements [Repository].
func (r *PostgresRepository) TeamGroundTruth(ctx context.Context, teamID string, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = 20
	}
	q := fmt.Sprintf(`
		SELECT %s
		%s
		WHERE d.team_id = $1 AND d.status = 'latest'
		ORDER BY d.updated_at DESC
		LIMIT $2`, decisionColumns, decisionFrom)

	rows, err := r.pool.Query(ctx, q, teamID, limit)
	if err != nil {
		return nil, fmt.Errorf("kg: team ground truth: %w", err)
	}
	decisions, err := pgx.CollectRows(rows, scanDecision)
	if err != nil {
		return nil, fmt.Errorf("kg: team ground truth: %w", err)
	}
	return decisions, nil
}

// TeammatesOf implements [Repository].
func (r *PostgresRepository) TeammatesOf(ctx context.Context, userID string) ([]Member, error) {
	const q = `
		SELECT m2.user_id, u.name, m2.team_id, t.name, m2.role
		FROM   team_members m1
		JOIN   team_members m2 ON m2.team_id = m1.team_id AND m2.user_id <> m1.user_id
		JOIN   users u  ON u.id = m2.user_id
		JOIN   teams t  ON t.id = m2.team_id
		WHERE  m1.user_id = $1
		ORDER  BY t.name, u.name`

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("kg: teammates: %w", err)
	}
	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Member, error) {
		var m Member
		err := row.Scan(&m.UserID, &m.UserName, &m.TeamID, &m.TeamName, &m.Role)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("kg: teammates: %w", err)
	}
	return members, nil
}
