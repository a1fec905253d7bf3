package serverdb

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/hearth/internal/remote"
)

// Endpoint is a registered push notification receiver.
type Endpoint struct {
	ID        string    `json:"id"`
	MemberID  string    `json:"member_id"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Failures  int       `json:"failures"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RegisterEndpoint stores an endpoint for a member. Registering the same URL
// again replaces its secret and clears its failure count.
func (db *ServerDB) RegisterEndpoint(memberID, rawURL, secret string) (*Endpoint, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, remote.Errorf(remote.CodeCheckViolation, "endpoint url must be http(s): %q", rawURL)
	}

	ep := &Endpoint{ID: uuid.NewString(), MemberID: memberID, URL: u.String(), Secret: secret, CreatedAt: time.Now().UTC()}
	_, err = db.conn.Exec(`
		INSERT INTO push_endpoints (id, member_id, url, secret, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (member_id, url) DO UPDATE SET secret = excluded.secret, failures = 0, last_error = ''`,
		ep.ID, ep.MemberID, ep.URL, ep.Secret, ep.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("register endpoint: %w", err)
	}
	// On conflict the stored id wins.
	if err := db.conn.QueryRow(`SELECT id, created_at FROM push_endpoints WHERE member_id = ? AND url = ?`, ep.MemberID, ep.URL).
		Scan(&ep.ID, &ep.CreatedAt); err != nil {
		return nil, fmt.Errorf("reload endpoint: %w", err)
	}
	return ep, nil
}

// DeleteEndpoint removes an endpoint. A non-empty memberID restricts the
// delete to that member's endpoints.
func (db *ServerDB) DeleteEndpoint(id, memberID string) error {
	q := `DELETE FROM push_endpoints WHERE id = ?`
	args := []any{id}
	if memberID != "" {
		q += ` AND member_id = ?`
		args = append(args, memberID)
	}
	res, err := db.conn.Exec(q, args...)
	if err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return remote.Errorf(remote.CodeNoRows, "no endpoint %s", id)
	}
	return nil
}

// EndpointsFor returns the endpoints of the given members. A nil slice
// selects every member.
func (db *ServerDB) EndpointsFor(memberIDs []string) ([]*Endpoint, error) {
	q := `SELECT id, member_id, url, secret, failures, last_error, created_at FROM push_endpoints`
	var args []any
	if memberIDs != nil {
		if len(memberIDs) == 0 {
			return nil, nil
		}
		q += ` WHERE member_id IN (?` + strings.Repeat(`, ?`, len(memberIDs)-1) + `)`
		for _, id := range memberIDs {
			args = append(args, id)
		}
	}
	q += ` ORDER BY created_at, id`

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()

	var out []*Endpoint
	for rows.Next() {
		ep := &Endpoint{}
		if err := rows.Scan(&ep.ID, &ep.MemberID, &ep.URL, &ep.Secret, &ep.Failures, &ep.LastError, &ep.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		out = append(out, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list endpoints: iterate: %w", err)
	}
	return out, nil
}

// RecordDelivery updates an endpoint's failure bookkeeping after a send.
func (db *ServerDB) RecordDelivery(id string, deliveryErr error) error {
	var err error
	if deliveryErr == nil {
		_, err = db.conn.Exec(`UPDATE push_endpoints SET failures = 0, last_error = '' WHERE id = ?`, id)
	} else {
		_, err = db.conn.Exec(`UPDATE push_endpoints SET failures = failures + 1, last_error = ? WHERE id = ?`, deliveryErr.Error(), id)
	}
	if err != nil {
		return fmt.Errorf("record delivery %s: %w", id, err)
	}
	return nil
}
