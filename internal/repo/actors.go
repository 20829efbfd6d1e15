package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"draftline/internal/domain"
)

// HashPIN returns a stable SHA-256 hex digest for the provided PIN.
func HashPIN(pin string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(pin)))
	return hex.EncodeToString(sum[:])
}

// UpsertActor stores an actor with a hashed PIN. PINHash must already
// contain the hashed value.
func (r Repo) UpsertActor(ctx context.Context, tx *sql.Tx, a domain.Actor, pinHash string) error {
	if a.ID == "" {
		return errors.New("id required")
	}
	if a.Name == "" {
		return errors.New("name required")
	}
	if !domain.ValidRole(a.Role) {
		return errors.New("valid role required")
	}
	if pinHash == "" {
		return errors.New("pin_hash required")
	}
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return r.DB.ExecContext(ctx, query, args...)
	}
	if a.CreatedAt == "" {
		a.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := exec(`INSERT INTO actors(id, name, role, pin_hash, created_at) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, role=excluded.role, pin_hash=excluded.pin_hash`,
		a.ID, a.Name, a.Role, pinHash, a.CreatedAt)
	return err
}

// GetActor returns an actor by ID.
func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, name, role, created_at FROM actors WHERE id=?`, id)
	var a domain.Actor
	err := row.Scan(&a.ID, &a.Name, &a.Role, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Actor{}, ErrNotFound
	}
	return a, err
}

// GetActorTx returns an actor by ID inside an open transaction.
func (r Repo) GetActorTx(ctx context.Context, tx *sql.Tx, id string) (domain.Actor, error) {
	row := tx.QueryRowContext(ctx, `SELECT id, name, role, created_at FROM actors WHERE id=?`, id)
	var a domain.Actor
	err := row.Scan(&a.ID, &a.Name, &a.Role, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Actor{}, ErrNotFound
	}
	return a, err
}

// VerifyActorPIN checks a hash against the stored one and returns the actor
// on success. A mismatch returns ErrNotFound so callers cannot distinguish
// an unknown actor from a wrong PIN.
func (r Repo) VerifyActorPIN(ctx context.Context, id, pinHash string) (domain.Actor, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, name, role, created_at FROM actors WHERE id=? AND pin_hash=?`, id, pinHash)
	var a domain.Actor
	err := row.Scan(&a.ID, &a.Name, &a.Role, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Actor{}, ErrNotFound
	}
	return a, err
}

// ListActors returns all actors, optionally filtered by role.
func (r Repo) ListActors(ctx context.Context, role string) ([]domain.Actor, error) {
	query := `SELECT id, name, role, created_at FROM actors`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, role)
	}
	query += ` ORDER BY id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var actors []domain.Actor
	for rows.Next() {
		var a domain.Actor
		if err := rows.Scan(&a.ID, &a.Name, &a.Role, &a.CreatedAt); err != nil {
			return nil, err
		}
		actors = append(actors, a)
	}
	return actors, rows.Err()
}
