package serverdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"regexp"
	"strings"

	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/remote"
)

var validFieldName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// envelope fields live in columns, never in data.
var envelopeFields = []string{"id", "client_ref", "created_at", "updated_at"}

func lookup(name string) (record.Collection, error) {
	coll, ok := record.Lookup(name)
	if !ok {
		return record.Collection{}, remote.Errorf(remote.CodeUndefinedTable, "relation %q does not exist", name)
	}
	return coll, nil
}

// cleanFields drops envelope keys and rejects names that are not plain
// identifiers.
func cleanFields(coll record.Collection, fields map[string]any) (map[string]any, error) {
	out := maps.Clone(fields)
	if out == nil {
		out = map[string]any{}
	}
	for _, f := range envelopeFields {
		delete(out, f)
	}
	for k := range out {
		if !validFieldName.MatchString(k) {
			return nil, remote.Errorf(remote.CodeUndefinedColumn, "column %s.%q does not exist", coll.Name, k)
		}
	}
	return out, nil
}

func checkRequired(coll record.Collection, rec record.Record) error {
	for _, f := range coll.Required {
		if strings.TrimSpace(rec.String(f)) == "" {
			return remote.Errorf(remote.CodeNotNullViolation, "null value in column %q of relation %q violates not-null constraint", f, coll.Name)
		}
	}
	return nil
}

// checkUnique rejects rec when another row shares any unique tuple. Tuples
// with an empty member are not constrained.
func checkUnique(tx *sql.Tx, coll record.Collection, rec record.Record) error {
	if len(coll.Unique) == 0 {
		return nil
	}
	rows, err := loadCollection(tx, coll.Name)
	if err != nil {
		return err
	}
	for _, tuple := range coll.Unique {
		if !hasAll(rec, tuple) {
			continue
		}
		for _, other := range rows {
			if other.ID != rec.ID && sameValues(rec, other, tuple) {
				return remote.Errorf(remote.CodeUniqueViolation, "duplicate key value violates unique constraint %s_%s_key", coll.Name, strings.Join(tuple, "_"))
			}
		}
	}
	return nil
}

func hasAll(r record.Record, fields []string) bool {
	for _, f := range fields {
		if r.String(f) == "" {
			return false
		}
	}
	return true
}

func sameValues(a, b record.Record, fields []string) bool {
	for _, f := range fields {
		if a.String(f) != b.String(f) {
			return false
		}
	}
	return true
}

func scanRecord(sc interface{ Scan(...any) error }) (record.Record, error) {
	var (
		rec              record.Record
		data             string
		created, updated string
	)
	if err := sc.Scan(&rec.ID, &rec.ClientRef, &data, &created, &updated); err != nil {
		return record.Record{}, err
	}
	if err := json.Unmarshal([]byte(data), &rec.Fields); err != nil {
		return record.Record{}, fmt.Errorf("decode record %s: %w", rec.ID, err)
	}
	rec.CreatedAt = parseTS(created)
	rec.UpdatedAt = parseTS(updated)
	return rec, nil
}

func getRecord(tx *sql.Tx, collection, id string) (record.Record, error) {
	row := tx.QueryRow(
		`SELECT id, client_ref, data, created_at, updated_at FROM records WHERE collection = ? AND id = ?`,
		collection, id,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, remote.Errorf(remote.CodeNoRows, "no %s row with id %s", collection, id)
	}
	if err != nil {
		return record.Record{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

func findByClientRef(tx *sql.Tx, collection, ref string) (record.Record, bool, error) {
	row := tx.QueryRow(
		`SELECT id, client_ref, data, created_at, updated_at FROM records WHERE collection = ? AND client_ref = ?`,
		collection, ref,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, false, nil
	}
	if err != nil {
		return record.Record{}, false, fmt.Errorf("find %s by client_ref: %w", collection, err)
	}
	return rec, true, nil
}

func loadCollection(tx *sql.Tx, collection string) ([]record.Record, error) {
	rows, err := tx.Query(
		`SELECT id, client_ref, data, created_at, updated_at FROM records WHERE collection = ? ORDER BY created_at, id`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", collection, err)
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load %s: iterate: %w", collection, err)
	}
	return out, nil
}

func writeRecord(tx *sql.Tx, collection string, rec record.Record) error {
	data, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, rec.ID, err)
	}
	_, err = tx.Exec(
		`INSERT OR REPLACE INTO records (collection, id, client_ref, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		collection, rec.ID, rec.ClientRef, string(data), formatTS(rec.CreatedAt), formatTS(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, rec.ID, err)
	}
	return nil
}

// Select returns the rows of a collection matching q.
func (db *ServerDB) Select(ctx context.Context, collection string, q remote.Query) ([]record.Record, error) {
	coll, err := lookup(collection)
	if err != nil {
		return nil, err
	}
	if err := q.Validate(coll); err != nil {
		return nil, err
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := loadCollection(tx, coll.Name)
	if err != nil {
		return nil, err
	}
	return q.Run(coll, rows), nil
}

// Get returns one row.
func (db *ServerDB) Get(ctx context.Context, collection, id string) (record.Record, error) {
	if _, err := lookup(collection); err != nil {
		return record.Record{}, err
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return record.Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	return getRecord(tx, collection, id)
}

// Insert stores a new row with a server-assigned id and timestamps. An
// insert repeating a client_ref already stored returns the stored row
// unchanged, so a retried create never duplicates.
func (db *ServerDB) Insert(ctx context.Context, collection string, rec record.Record) (record.Record, error) {
	coll, err := lookup(collection)
	if err != nil {
		return record.Record{}, err
	}
	fields, err := cleanFields(coll, rec.Fields)
	if err != nil {
		return record.Record{}, err
	}

	var out record.Record
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		if rec.ClientRef != "" {
			existing, ok, err := findByClientRef(tx, coll.Name, rec.ClientRef)
			if err != nil {
				return err
			}
			if ok {
				out = existing
				return nil
			}
		}

		now := db.now()
		out = record.Record{
			ID:        NewID(),
			ClientRef: rec.ClientRef,
			CreatedAt: now,
			UpdatedAt: now,
			Fields:    fields,
		}
		if err := checkRequired(coll, out); err != nil {
			return err
		}
		if err := checkUnique(tx, coll, out); err != nil {
			return err
		}
		if err := writeRecord(tx, coll.Name, out); err != nil {
			return err
		}
		_, err := AppendChange(tx, coll.Name, remote.OpInsert, out)
		return err
	})
	if err != nil {
		return record.Record{}, err
	}
	return out, nil
}

// Update merges fields into an existing row.
func (db *ServerDB) Update(ctx context.Context, collection, id string, fields map[string]any) (record.Record, error) {
	coll, err := lookup(collection)
	if err != nil {
		return record.Record{}, err
	}
	fields, err = cleanFields(coll, fields)
	if err != nil {
		return record.Record{}, err
	}

	var out record.Record
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := getRecord(tx, coll.Name, id)
		if err != nil {
			return err
		}
		out = cur.With(fields)
		out.UpdatedAt = db.now()
		if err := checkRequired(coll, out); err != nil {
			return err
		}
		if err := checkUnique(tx, coll, out); err != nil {
			return err
		}
		if err := writeRecord(tx, coll.Name, out); err != nil {
			return err
		}
		_, err = AppendChange(tx, coll.Name, remote.OpUpdate, out)
		return err
	})
	if err != nil {
		return record.Record{}, err
	}
	return out, nil
}

// Delete removes a row; the change log keeps its last state.
func (db *ServerDB) Delete(ctx context.Context, collection, id string) error {
	coll, err := lookup(collection)
	if err != nil {
		return err
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := getRecord(tx, coll.Name, id)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM records WHERE collection = ? AND id = ?`, coll.Name, id); err != nil {
			return fmt.Errorf("delete %s/%s: %w", coll.Name, id, err)
		}
		_, err = AppendChange(tx, coll.Name, remote.OpDelete, cur)
		return err
	})
}

// UpsertBy inserts rec, or updates the row whose key field has the same
// value. Rows whose fields already match are left alone. It reports the
// operation applied, or "" when nothing changed.
func (db *ServerDB) UpsertBy(ctx context.Context, collection, key string, rec record.Record) (record.Record, remote.Op, error) {
	coll, err := lookup(collection)
	if err != nil {
		return record.Record{}, "", err
	}
	if rec.String(key) == "" {
		return record.Record{}, "", remote.Errorf(remote.CodeNotNullViolation, "upsert key %q is empty", key)
	}
	fields, err := cleanFields(coll, rec.Fields)
	if err != nil {
		return record.Record{}, "", err
	}

	var (
		out record.Record
		op  remote.Op
	)
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := loadCollection(tx, coll.Name)
		if err != nil {
			return err
		}
		now := db.now()
		for _, cur := range rows {
			if cur.String(key) != rec.String(key) {
				continue
			}
			next := cur.With(fields)
			if reflect.DeepEqual(normalize(next.Fields), normalize(cur.Fields)) {
				out = cur
				return nil
			}
			next.UpdatedAt = now
			if err := checkRequired(coll, next); err != nil {
				return err
			}
			if err := writeRecord(tx, coll.Name, next); err != nil {
				return err
			}
			out, op = next, remote.OpUpdate
			_, err = AppendChange(tx, coll.Name, op, out)
			return err
		}

		out = record.Record{ID: NewID(), CreatedAt: now, UpdatedAt: now, Fields: fields}
		if err := checkRequired(coll, out); err != nil {
			return err
		}
		if err := checkUnique(tx, coll, out); err != nil {
			return err
		}
		if err := writeRecord(tx, coll.Name, out); err != nil {
			return err
		}
		op = remote.OpInsert
		_, err = AppendChange(tx, coll.Name, op, out)
		return err
	})
	if err != nil {
		return record.Record{}, "", err
	}
	return out, op, nil
}

// normalize round-trips fields through JSON so values decoded from the
// database and values built in Go compare equal.
func normalize(fields map[string]any) map[string]any {
	data, err := json.Marshal(fields)
	if err != nil {
		return fields
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return fields
	}
	return out
}

// Changes returns a page of the change log.
func (db *ServerDB) Changes(ctx context.Context, collection string, afterSeq int64, limit int) (ChangePage, error) {
	if collection != "" {
		if _, err := lookup(collection); err != nil {
			return ChangePage{}, err
		}
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return ChangePage{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	return ChangesSince(tx, collection, afterSeq, limit)
}

// Head returns the newest change sequence.
func (db *ServerDB) Head(ctx context.Context) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	return HeadSeq(tx)
}
