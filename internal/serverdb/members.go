package serverdb

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	apiKeyPrefix = "hth_"
	keyLength    = 32
)

var base62Chars = []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")

// ErrMemberExists is returned when adding a member whose name is taken.
var ErrMemberExists = errors.New("member already exists")

// Member is one person in the household.
type Member struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// APIKey represents a stored API key (without the plaintext secret).
type APIKey struct {
	ID         string
	MemberID   string
	KeyPrefix  string
	Name       string
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// CreateMember adds a household member. Names are case-insensitive.
func (db *ServerDB) CreateMember(name string) (*Member, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("member name is required")
	}
	if existing, err := db.GetMemberByName(name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrMemberExists, name)
	}

	m := &Member{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	if _, err := db.conn.Exec(`INSERT INTO members (id, name, created_at) VALUES (?, ?, ?)`, m.ID, m.Name, m.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	return m, nil
}

// GetMemberByName returns the member with the given name, or nil if not found.
func (db *ServerDB) GetMemberByName(name string) (*Member, error) {
	m := &Member{}
	err := db.conn.QueryRow(
		`SELECT id, name, created_at FROM members WHERE name = ?`, strings.ToLower(strings.TrimSpace(name)),
	).Scan(&m.ID, &m.Name, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member by name: %w", err)
	}
	return m, nil
}

// ListMembers returns every member ordered by name.
func (db *ServerDB) ListMembers() ([]*Member, error) {
	rows, err := db.conn.Query(`SELECT id, name, created_at FROM members ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(&m.ID, &m.Name, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members: iterate: %w", err)
	}
	return out, nil
}

// GenerateAPIKey creates a new API key for the given member.
// Returns the plaintext key (shown once) and the stored APIKey record.
func (db *ServerDB) GenerateAPIKey(memberID, name string) (string, *APIKey, error) {
	var exists int
	if err := db.conn.QueryRow(`SELECT 1 FROM members WHERE id = ?`, memberID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return "", nil, fmt.Errorf("member not found: %s", memberID)
		}
		return "", nil, fmt.Errorf("check member: %w", err)
	}

	secret := make([]byte, keyLength)
	for i := range secret {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Chars))))
		if err != nil {
			return "", nil, fmt.Errorf("generate random key: %w", err)
		}
		secret[i] = base62Chars[n.Int64()]
	}

	plaintext := apiKeyPrefix + string(secret)
	now := time.Now().UTC()
	ak := &APIKey{
		ID:        "ak_" + uuid.NewString()[:8],
		MemberID:  memberID,
		KeyPrefix: string(secret[:8]),
		Name:      name,
		CreatedAt: now,
	}
	_, err := db.conn.Exec(
		`INSERT INTO api_keys (id, member_id, key_hash, key_prefix, name, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ak.ID, memberID, hashKey(plaintext), ak.KeyPrefix, name, now,
	)
	if err != nil {
		return "", nil, fmt.Errorf("insert api key: %w", err)
	}
	return plaintext, ak, nil
}

func hashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// VerifyAPIKey checks a plaintext key against stored hashes.
// Returns the matching APIKey and its Member, or nils when unknown.
func (db *ServerDB) VerifyAPIKey(plaintextKey string) (*APIKey, *Member, error) {
	keyHash := hashKey(plaintextKey)

	ak := &APIKey{}
	m := &Member{}
	err := db.conn.QueryRow(`
		SELECT ak.id, ak.member_id, ak.key_prefix, ak.name, ak.last_used_at, ak.created_at,
		       m.id, m.name, m.created_at
		FROM api_keys ak
		JOIN members m ON m.id = ak.member_id
		WHERE ak.key_hash = ?
	`, keyHash).Scan(
		&ak.ID, &ak.MemberID, &ak.KeyPrefix, &ak.Name, &ak.LastUsedAt, &ak.CreatedAt,
		&m.ID, &m.Name, &m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		slog.Debug("api key not found", "key_hash_prefix", keyHash[:8])
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("verify api key: %w", err)
	}

	now := time.Now().UTC()
	if _, err := db.conn.Exec(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, now, ak.ID); err != nil {
		slog.Warn("update last_used_at", "key_id", ak.ID, "err", err)
	}
	ak.LastUsedAt = &now

	return ak, m, nil
}

// RevokeAPIKey deletes an API key.
func (db *ServerDB) RevokeAPIKey(keyID string) error {
	res, err := db.conn.Exec(`DELETE FROM api_keys WHERE id = ?`, keyID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("api key not found: %s", keyID)
	}
	return nil
}
