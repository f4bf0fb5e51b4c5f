package relations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/dbx"
	"github.com/dmitrijs2005/charasync/internal/models"
	servermodels "github.com/dmitrijs2005/charasync/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Pair(ctx context.Context, userID, otherID string) error {
	query := `INSERT INTO pairs (user_id, other_id) VALUES ($1, $2) ON CONFLICT (user_id, other_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, userID, otherID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetPaused(ctx context.Context, userID, otherID string, paused bool) error {
	query := `UPDATE pairs SET paused = $3 WHERE user_id = $1 AND other_id = $2`
	res, err := r.db.ExecContext(ctx, query, userID, otherID, paused)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("pair %s/%s: %w", userID, otherID, common.ErrNotFound)
	}
	return nil
}

func (r *PostgresRepository) Group(ctx context.Context, groupID string) (*servermodels.Group, error) {
	query := `SELECT id, owner_id, salt, password_verifier, created_at FROM groups WHERE id = $1`
	g := &servermodels.Group{}
	err := r.db.QueryRowContext(ctx, query, groupID).Scan(&g.ID, &g.OwnerID, &g.Salt, &g.Verifier, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", groupID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) CreateGroup(ctx context.Context, g *servermodels.Group) error {
	query := `INSERT INTO groups (id, owner_id, salt, password_verifier) VALUES ($1, $2, $3, $4) RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query, g.ID, g.OwnerID, g.Salt, g.Verifier).Scan(&g.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("group %s: %w", g.ID, common.ErrConflict)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) JoinGroup(ctx context.Context, groupID, userID string) error {
	query := `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT (group_id, user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, groupID, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Relationships(ctx context.Context, userID string) (models.Relationships, error) {
	rel := models.Relationships{Pairs: []models.Pair{}, Memberships: []models.Membership{}}

	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, other_id, paused FROM pairs WHERE user_id = $1 OR other_id = $1 ORDER BY user_id, other_id`, userID)
	if err != nil {
		return rel, fmt.Errorf("failed to select pairs: %w", err)
	}
	for rows.Next() {
		var p models.Pair
		if err := rows.Scan(&p.UserID, &p.OtherID, &p.Paused); err != nil {
			rows.Close()
			return rel, err
		}
		rel.Pairs = append(rel.Pairs, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return rel, err
	}

	query := `
		SELECT group_id, user_id, paused FROM group_members
		WHERE group_id IN (SELECT group_id FROM group_members WHERE user_id = $1)
		ORDER BY group_id, user_id
	`
	rows, err = r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return rel, fmt.Errorf("failed to select memberships: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Paused); err != nil {
			return rel, err
		}
		rel.Memberships = append(rel.Memberships, m)
	}
	return rel, rows.Err()
}
