package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"terraguard/internal/platform/postgres"
	"terraguard/internal/violation/models"
	id "terraguard/pkg/domain"
	"terraguard/pkg/platform/sentinel"
	txcontext "terraguard/pkg/platform/tx"
)

// PostgresStore persists violations. Each append is a single INSERT, so a
// failed append leaves nothing behind.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgres(db *sql.DB, opts ...Option) *PostgresStore {
	o := buildOptions(opts)
	return &PostgresStore{db: db, now: o.now}
}

const violationColumns = `id, seq, actor_id, latitude, longitude, sampled_at, detected_at, zone_id, message`

// Append inserts the violation and reads back its sequence. An unknown actor
// maps to sentinel.ErrNotFound.
func (s *PostgresStore) Append(ctx context.Context, in models.Input) (*models.Violation, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	v := newViolation(in, s.now())

	err := txcontext.Pick(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO violations (id, actor_id, latitude, longitude, sampled_at, detected_at, zone_id, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq`,
		uuid.UUID(v.ID),
		uuid.UUID(v.ActorID),
		v.Latitude,
		v.Longitude,
		nullTime(v.SampledAt),
		v.DetectedAt,
		v.ZoneID,
		v.Message,
	).Scan(&v.Seq)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("actor %s: %w", v.ActorID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("insert violation: %w", err)
	}
	return &v, nil
}

// ListByActor returns the actor's violations in append order.
func (s *PostgresStore) ListByActor(ctx context.Context, actorID id.ActorID, w models.Window) ([]*models.Violation, error) {
	return s.query(ctx, `
		SELECT `+violationColumns+` FROM violations
		WHERE actor_id = $1
		  AND ($2::timestamptz IS NULL OR detected_at >= $2)
		  AND ($3::timestamptz IS NULL OR detected_at < $3)
		ORDER BY seq ASC`,
		uuid.UUID(actorID), nullTime(w.From), nullTime(w.To))
}

// ListAll returns every violation, newest detection first.
func (s *PostgresStore) ListAll(ctx context.Context, w models.Window) ([]*models.Violation, error) {
	return s.query(ctx, `
		SELECT `+violationColumns+` FROM violations
		WHERE ($1::timestamptz IS NULL OR detected_at >= $1)
		  AND ($2::timestamptz IS NULL OR detected_at < $2)
		ORDER BY detected_at DESC, seq DESC`,
		nullTime(w.From), nullTime(w.To))
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*models.Violation, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query violations: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Violation, 0)
	for rows.Next() {
		var (
			v         models.Violation
			rawID     uuid.UUID
			rawActor  uuid.UUID
			sampledAt sql.NullTime
		)
		if err := rows.Scan(&rawID, &v.Seq, &rawActor, &v.Latitude, &v.Longitude,
			&sampledAt, &v.DetectedAt, &v.ZoneID, &v.Message); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		v.ID = id.ViolationID(rawID)
		v.ActorID = id.ActorID(rawActor)
		v.DetectedAt = v.DetectedAt.UTC()
		if sampledAt.Valid {
			v.SampledAt = sampledAt.Time.UTC()
		}
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate violations: %w", err)
	}
	return out, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
