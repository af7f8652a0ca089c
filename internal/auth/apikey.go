package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokenboard/tokenboard/internal/leaderboard"
)

var ErrInvalidAPIKey = errors.New("invalid api key")

const (
	apiKeyPrefixLength = 10
	apiKeySecretLength = 48
	apiKeyScheme       = "tb-"
	alphabet           = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateAPIKey returns the random prefix, secret, and encoded token for a
// new sync key. Only the secret's digest is stored; the full token is shown
// once at issuance.
func GenerateAPIKey() (string, string, string, error) {
	prefix, err := randomString(apiKeyPrefixLength)
	if err != nil {
		return "", "", "", err
	}
	secret, err := randomString(apiKeySecretLength)
	if err != nil {
		return "", "", "", err
	}
	token := fmt.Sprintf("%s%s.%s", apiKeyScheme, prefix, secret)
	return prefix, secret, token, nil
}

// ParseAPIKey splits a presented token into its lookup prefix and secret.
func ParseAPIKey(token string) (string, string, error) {
	rest, ok := strings.CutPrefix(token, apiKeyScheme)
	if !ok {
		return "", "", ErrInvalidAPIKey
	}
	prefix, secret, ok := strings.Cut(rest, ".")
	if !ok || prefix == "" || secret == "" {
		return "", "", ErrInvalidAPIKey
	}
	return prefix, secret, nil
}

// HashSecret digests an API key secret for at-rest storage.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func randomString(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	out := make([]byte, length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}

// APIKey is the issued-key metadata returned to admins.
type APIKey struct {
	ID        uuid.UUID          `json:"id"`
	UserID    leaderboard.UserID `json:"userId"`
	Prefix    string             `json:"prefix"`
	CreatedAt time.Time          `json:"createdAt"`
}

// KeyStore issues and verifies sync API keys against Postgres.
type KeyStore struct {
	pool *pgxpool.Pool
}

func NewKeyStore(pool *pgxpool.Pool) *KeyStore {
	return &KeyStore{pool: pool}
}

// Issue mints a key for a user and returns the one-time full token.
func (k *KeyStore) Issue(ctx context.Context, userID leaderboard.UserID) (APIKey, string, error) {
	prefix, secret, token, err := GenerateAPIKey()
	if err != nil {
		return APIKey{}, "", fmt.Errorf("generate api key: %w", err)
	}
	key := APIKey{ID: uuid.New(), UserID: userID, Prefix: prefix, CreatedAt: time.Now().UTC()}
	_, err = k.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, prefix, secret_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		key.ID, string(userID), prefix, HashSecret(secret), key.CreatedAt)
	if err != nil {
		return APIKey{}, "", fmt.Errorf("store api key: %w", err)
	}
	return key, token, nil
}

// Verify resolves a presented token to its owning user, bumping the key's
// last-used timestamp on success.
func (k *KeyStore) Verify(ctx context.Context, token string) (leaderboard.UserID, error) {
	prefix, secret, err := ParseAPIKey(token)
	if err != nil {
		return "", err
	}
	var (
		id         uuid.UUID
		userID     string
		storedHash string
	)
	err = k.pool.QueryRow(ctx,
		`SELECT id, user_id, secret_hash FROM api_keys WHERE prefix = $1`, prefix).
		Scan(&id, &userID, &storedHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrInvalidAPIKey
	}
	if err != nil {
		return "", fmt.Errorf("lookup api key: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(storedHash), []byte(HashSecret(secret))) != 1 {
		return "", ErrInvalidAPIKey
	}
	if _, err := k.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id); err != nil {
		return "", fmt.Errorf("touch api key: %w", err)
	}
	return leaderboard.UserID(userID), nil
}
