package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"terraguard/internal/actor/models"
	"terraguard/internal/platform/postgres"
	id "terraguard/pkg/domain"
	"terraguard/pkg/platform/sentinel"
	txcontext "terraguard/pkg/platform/tx"
)

// PostgresStore persists actors in the actors table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const actorColumns = `id, name, identity_number, role, created_at`

// Create inserts the actor. A duplicate identity number maps to
// sentinel.ErrAlreadyUsed; the unique index decides races.
func (s *PostgresStore) Create(ctx context.Context, actor *models.Actor) error {
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx,
		`INSERT INTO actors (`+actorColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		uuid.UUID(actor.ID), actor.Name, actor.IdentityNumber, string(actor.Role), actor.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("identity %s: %w", actor.IdentityNumber, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert actor: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, actorID id.ActorID) (*models.Actor, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+actorColumns+` FROM actors WHERE id = $1`, uuid.UUID(actorID))
	return scanActor(row)
}

func (s *PostgresStore) FindByIdentity(ctx context.Context, identityNumber string) (*models.Actor, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+actorColumns+` FROM actors WHERE identity_number = $1`, identityNumber)
	return scanActor(row)
}

// FindByIDs loads several actors in one round trip.
func (s *PostgresStore) FindByIDs(ctx context.Context, ids []id.ActorID) (map[id.ActorID]*models.Actor, error) {
	out := make(map[id.ActorID]*models.Actor, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, actorID := range ids {
		keys[i] = actorID.String()
	}
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT `+actorColumns+` FROM actors WHERE id = ANY($1::uuid[])`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("query actors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actors: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanActor(row scanner) (*models.Actor, error) {
	var (
		a     models.Actor
		rawID uuid.UUID
		role  string
	)
	if err := row.Scan(&rawID, &a.Name, &a.IdentityNumber, &role, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("actor: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan actor: %w", err)
	}
	a.ID = id.ActorID(rawID)
	a.Role = models.Role(role)
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}
