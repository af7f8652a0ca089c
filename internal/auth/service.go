package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokenboard/tokenboard/internal/config"
)

var ErrBadCredentials = errors.New("invalid email or password")

// AdminService authenticates the admin accounts that manage users and keys.
type AdminService struct {
	pool   *pgxpool.Pool
	tokens *TokenManager
}

func NewAdminService(ctx context.Context, cfg config.AdminConfig, pool *pgxpool.Pool) (*AdminService, error) {
	tokens, err := NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL, "tokenboard")
	if err != nil {
		return nil, err
	}
	svc := &AdminService{pool: pool, tokens: tokens}
	if err := svc.bootstrap(ctx, cfg); err != nil {
		return nil, err
	}
	return svc, nil
}

// bootstrap seeds the first admin account when the table is empty and
// bootstrap credentials are configured.
func (s *AdminService) bootstrap(ctx context.Context, cfg config.AdminConfig) error {
	email := strings.TrimSpace(strings.ToLower(cfg.BootstrapEmail))
	if email == "" || cfg.BootstrapPassword == "" {
		return nil
	}
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM admin_accounts`).Scan(&count); err != nil {
		return fmt.Errorf("count admin accounts: %w", err)
	}
	if count > 0 {
		return nil
	}
	hash, err := HashPassword(cfg.BootstrapPassword)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO admin_accounts (id, email, password_hash) VALUES ($1, $2, $3)`,
		uuid.New(), email, hash); err != nil {
		return fmt.Errorf("seed admin account: %w", err)
	}
	slog.Info("seeded bootstrap admin account", "email", email)
	return nil
}

// Login exchanges admin credentials for a session token.
func (s *AdminService) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	var (
		id   uuid.UUID
		hash string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, password_hash FROM admin_accounts WHERE email = $1`, email).Scan(&id, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", time.Time{}, ErrBadCredentials
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("lookup admin: %w", err)
	}
	ok, err := VerifyPassword(password, hash)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return "", time.Time{}, ErrBadCredentials
	}
	return s.tokens.Issue(id, email)
}

// Authorize validates a bearer token from an admin request.
func (s *AdminService) Authorize(token string) (uuid.UUID, error) {
	return s.tokens.Validate(token)
}
