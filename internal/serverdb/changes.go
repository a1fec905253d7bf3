package serverdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/remote"
)

// ChangePage is one page of the change log.
type ChangePage struct {
	Changes []remote.Change `json:"changes"`
	LastSeq int64           `json:"last_seq"`
	HasMore bool            `json:"has_more"`
}

// AppendChange records a mutation in the change log within the given
// transaction and returns its sequence number.
func AppendChange(tx *sql.Tx, collection string, op remote.Op, rec record.Record) (int64, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("marshal change record: %w", err)
	}
	res, err := tx.Exec(
		`INSERT INTO changes (collection, op, record_id, record) VALUES (?, ?, ?, ?)`,
		collection, string(op), rec.ID, string(data),
	)
	if err != nil {
		return 0, fmt.Errorf("insert change %s/%s: %w", collection, rec.ID, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	slog.Debug("change appended", "seq", seq, "collection", collection, "op", op, "id", rec.ID)
	return seq, nil
}

// ChangesSince returns up to limit changes after afterSeq, oldest first. An
// empty collection reads every collection.
func ChangesSince(tx *sql.Tx, collection string, afterSeq int64, limit int) (ChangePage, error) {
	page := ChangePage{LastSeq: afterSeq}
	if limit <= 0 {
		limit = 500
	}

	var (
		rows *sql.Rows
		err  error
	)
	if collection != "" {
		rows, err = tx.Query(
			`SELECT seq, collection, op, record FROM changes WHERE seq > ? AND collection = ? ORDER BY seq ASC LIMIT ?`,
			afterSeq, collection, limit,
		)
	} else {
		rows, err = tx.Query(
			`SELECT seq, collection, op, record FROM changes WHERE seq > ? ORDER BY seq ASC LIMIT ?`,
			afterSeq, limit,
		)
	}
	if err != nil {
		return page, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ch   remote.Change
			op   string
			data string
		)
		if err := rows.Scan(&ch.Seq, &ch.Collection, &op, &data); err != nil {
			return page, fmt.Errorf("scan change: %w", err)
		}
		ch.Op = remote.Op(op)
		if err := json.Unmarshal([]byte(data), &ch.Record); err != nil {
			return page, fmt.Errorf("decode change seq=%d: %w", ch.Seq, err)
		}
		page.Changes = append(page.Changes, ch)
		page.LastSeq = ch.Seq
	}
	if err := rows.Err(); err != nil {
		return page, fmt.Errorf("rows iteration: %w", err)
	}

	page.HasMore = len(page.Changes) == limit
	return page, nil
}

// HeadSeq returns the newest change sequence, or 0 for an empty log.
func HeadSeq(tx *sql.Tx) (int64, error) {
	var seq int64
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM changes`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("head seq: %w", err)
	}
	return seq, nil
}
