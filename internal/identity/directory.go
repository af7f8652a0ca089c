package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokenboard/tokenboard/internal/leaderboard"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidUser  = errors.New("invalid user")
)

// Postgres is the user directory backing leaderboard decoration and team
// filtering. Users are registered through the admin surface; the engine
// itself never writes here.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Lookup resolves directory metadata for the given IDs in one query.
func (p *Postgres) Lookup(ctx context.Context, ids []leaderboard.UserID) (map[leaderboard.UserID]leaderboard.Identity, error) {
	out := make(map[leaderboard.UserID]leaderboard.Identity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	raw := make([]string, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, string(id))
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, display_name, COALESCE(team, ''), has_profile FROM users WHERE id = ANY($1)`, raw)
	if err != nil {
		return nil, fmt.Errorf("lookup users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ident leaderboard.Identity
		var id string
		if err := rows.Scan(&id, &ident.DisplayName, &ident.Team, &ident.HasProfile); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		ident.ID = leaderboard.UserID(id)
		out[ident.ID] = ident
	}
	return out, rows.Err()
}

// TeamMembers returns the ID set for a team slug. A user belongs to at most
// one team.
func (p *Postgres) TeamMembers(ctx context.Context, team string) (map[leaderboard.UserID]struct{}, error) {
	rows, err := p.pool.Query(ctx, `SELECT id FROM users WHERE team = $1`, team)
	if err != nil {
		return nil, fmt.Errorf("list team %q: %w", team, err)
	}
	defer rows.Close()
	out := make(map[leaderboard.UserID]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		out[leaderboard.UserID(id)] = struct{}{}
	}
	return out, rows.Err()
}

// CreateUserParams registers a new user in the directory.
type CreateUserParams struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Team        string `json:"team,omitempty"`
}

func (p *Postgres) CreateUser(ctx context.Context, params CreateUserParams) (leaderboard.Identity, error) {
	id := strings.TrimSpace(params.ID)
	name := strings.TrimSpace(params.DisplayName)
	if id == "" || name == "" {
		return leaderboard.Identity{}, fmt.Errorf("%w: id and display name required", ErrInvalidUser)
	}
	var team *string
	if t := strings.TrimSpace(params.Team); t != "" {
		team = &t
	}
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO users (id, display_name, team) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		id, name, team)
	if err != nil {
		return leaderboard.Identity{}, fmt.Errorf("create user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return leaderboard.Identity{}, fmt.Errorf("%w: %s", ErrUserExists, id)
	}
	return leaderboard.Identity{ID: leaderboard.UserID(id), DisplayName: name, Team: params.Team}, nil
}

func (p *Postgres) GetUser(ctx context.Context, id leaderboard.UserID) (leaderboard.Identity, error) {
	var ident leaderboard.Identity
	var raw string
	err := p.pool.QueryRow(ctx,
		`SELECT id, display_name, COALESCE(team, ''), has_profile FROM users WHERE id = $1`, string(id)).
		Scan(&raw, &ident.DisplayName, &ident.Team, &ident.HasProfile)
	if errors.Is(err, pgx.ErrNoRows) {
		return leaderboard.Identity{}, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	if err != nil {
		return leaderboard.Identity{}, fmt.Errorf("get user %s: %w", id, err)
	}
	ident.ID = leaderboard.UserID(raw)
	return ident, nil
}

func (p *Postgres) ListUsers(ctx context.Context) ([]leaderboard.Identity, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, display_name, COALESCE(team, ''), has_profile FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var out []leaderboard.Identity
	for rows.Next() {
		var ident leaderboard.Identity
		var id string
		if err := rows.Scan(&id, &ident.DisplayName, &ident.Team, &ident.HasProfile); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		ident.ID = leaderboard.UserID(id)
		out = append(out, ident)
	}
	return out, rows.Err()
}
