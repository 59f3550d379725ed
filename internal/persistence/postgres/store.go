// Package postgres implements domain.Store on PostgreSQL, recording outbox rows
// in the same transaction as each mutation.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/timely/internal/domain"
	"example.com/timely/internal/events"
)

const foreignKeyViolation = "23503"

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides Postgres-backed persistence for projects, activities and outbox events.
type Store struct {
	queries
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

// WithinTx runs fn inside a single transaction, committing only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(q domain.Queries) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(queries{db: tx})
	})
}

// queries implements domain.Queries on either the pool or a transaction.
type queries struct {
	db dbtx
}

const projectColumns = `id, name, created_by_id, created_at, updated_at`

const activityColumns = `id, about, hours_worked, remark, verified_by, performed_by_id, project_id, created_at, updated_at`

func (q queries) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO projects (`+projectColumns+`) VALUES ($1,$2,$3,$4,$5)`,
		p.ID, p.Name, p.CreatedByID, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (q queries) GetProject(ctx context.Context, projectID string) (*domain.Project, error) {
	row := q.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, projectID)
	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (q queries) ListProjects(ctx context.Context, viewerID string, page domain.Page) ([]domain.Project, error) {
	args := []any{}
	query := `SELECT ` + projectColumns + ` FROM projects`
	if page.Cursor != nil {
		query += ` WHERE (created_at, id) < ($1, $2)`
		args = append(args, page.Cursor.CreatedAt, page.Cursor.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if page.Limit > 0 {
		args = append(args, page.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	projects, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Project, error) {
		return scanProject(row)
	})
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return projects, nil
	}

	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	activities, err := q.listActivities(ctx,
		`WHERE performed_by_id = $1 AND project_id = ANY($2)`, viewerID, ids)
	if err != nil {
		return nil, err
	}

	byProject := make(map[string][]domain.Activity, len(projects))
	for _, a := range activities {
		byProject[a.ProjectID] = append(byProject[a.ProjectID], a)
	}
	for i := range projects {
		if own := byProject[projects[i].ID]; own != nil {
			projects[i].Activities = own
		} else {
			projects[i].Activities = []domain.Activity{}
		}
	}
	return projects, nil
}

func (q queries) UpdateProjectName(ctx context.Context, projectID, name string, updatedAt time.Time) error {
	tag, err := q.db.Exec(ctx, `UPDATE projects SET name = $2, updated_at = $3 WHERE id = $1`, projectID, name, updatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}

func (q queries) DeleteProject(ctx context.Context, projectID string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}

func (q queries) InsertActivity(ctx context.Context, a domain.Activity) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO activities (`+activityColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.About, a.HoursWorked, a.Remark, a.VerifiedBy, a.PerformedByID, a.ProjectID, a.CreatedAt, a.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return domain.ErrProjectNotFound
	}
	return err
}

func (q queries) GetActivity(ctx context.Context, activityID string) (*domain.Activity, error) {
	row := q.db.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = $1`, activityID)
	a, err := scanActivity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (q queries) ListActivitiesByProject(ctx context.Context, projectID string) ([]domain.Activity, error) {
	return q.listActivities(ctx, `WHERE project_id = $1`, projectID)
}

func (q queries) HasActivityBy(ctx context.Context, projectID, userID string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM activities WHERE project_id = $1 AND performed_by_id = $2)`,
		projectID, userID,
	).Scan(&exists)
	return exists, err
}

func (q queries) UpdateActivity(ctx context.Context, a domain.Activity) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE activities
            SET about = $2, hours_worked = $3, remark = $4, verified_by = $5, updated_at = $6
          WHERE id = $1`,
		a.ID, a.About, a.HoursWorked, a.Remark, a.VerifiedBy, a.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrActivityNotFound
	}
	return nil
}

func (q queries) DeleteActivity(ctx context.Context, activityID string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM activities WHERE id = $1`, activityID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrActivityNotFound
	}
	return nil
}

func (q queries) DeleteActivitiesByProject(ctx context.Context, projectID string) (int, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM activities WHERE project_id = $1`, projectID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// AppendEvent records an outbox row routed by the events catalog. The event id
// doubles as the dedupe key so retried transactions never publish twice.
func (q queries) AppendEvent(ctx context.Context, e domain.Event) error {
	meta, ok := events.Lookup(e.Type)
	if !ok {
		return fmt.Errorf("unknown event type: %s", e.Type)
	}
	body, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", e.Type, err)
	}

	_, err = q.db.Exec(ctx,
		`INSERT INTO outbox (dedupe_key, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, actor_id, payload, occurred_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
         ON CONFLICT (dedupe_key) DO NOTHING`,
		e.ID, e.AggregateType, e.AggregateID, e.Type, meta.Topic, meta.SchemaSubject, e.PartitionKey, e.ActorID, body, e.OccurredAt,
	)
	return err
}

func (q queries) listActivities(ctx context.Context, where string, args ...any) ([]domain.Activity, error) {
	rows, err := q.db.Query(ctx, `SELECT `+activityColumns+` FROM activities `+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Activity, error) {
		return scanActivity(row)
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Activity{}
	}
	return out, nil
}

func scanProject(row pgx.Row) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Name, &p.CreatedByID, &p.CreatedAt, &p.UpdatedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, err
}

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var a domain.Activity
	err := row.Scan(&a.ID, &a.About, &a.HoursWorked, &a.Remark, &a.VerifiedBy, &a.PerformedByID, &a.ProjectID, &a.CreatedAt, &a.UpdatedAt)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, err
}
