// Package store persists export reports into a SQLite database so several
// runs over the same dump can be queried together.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"avmdis/internal/report"
)

// ErrRunNotFound indicates the requested run doesn't exist
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id      TEXT PRIMARY KEY,
	file    TEXT NOT NULL,
	digest  TEXT NOT NULL,
	base    INTEGER NOT NULL,
	created TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS methods (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	address    INTEGER NOT NULL,
	code_start INTEGER NOT NULL,
	code_end   INTEGER NOT NULL,
	max_stack  INTEGER NOT NULL,
	locals     INTEGER NOT NULL,
	error      TEXT,
	PRIMARY KEY (run_id, address)
);
CREATE TABLE IF NOT EXISTS instructions (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	method   INTEGER NOT NULL,
	code_off INTEGER NOT NULL,
	size     INTEGER NOT NULL,
	opcode   INTEGER NOT NULL,
	mnemonic TEXT NOT NULL,
	operands JSON NOT NULL,
	PRIMARY KEY (run_id, method, code_off)
);
CREATE TABLE IF NOT EXISTS xrefs (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	method   INTEGER NOT NULL,
	code_off INTEGER NOT NULL,
	opcode   TEXT NOT NULL,
	idx      INTEGER NOT NULL,
	name     TEXT NOT NULL,
	resolved INTEGER NOT NULL,
	tags     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS xrefs_name ON xrefs(name);
CREATE TABLE IF NOT EXISTS traits (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	section    INTEGER NOT NULL,
	ordinal    INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	name       TEXT NOT NULL,
	name_index INTEGER NOT NULL,
	type_index INTEGER NOT NULL,
	id         INTEGER NOT NULL,
	PRIMARY KEY (run_id, section, ordinal)
);
`

// Store handles SQLite storage for reports
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps in-memory databases and pragmas consistent.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// Save writes r in one transaction and returns its run id, assigning one
// when r.RunID is empty. Saving the same run id again replaces it.
func (s *Store) Save(ctx context.Context, r *report.Report) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.RunID == "" {
		r.RunID = NewRunID()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", r.RunID); err != nil {
		return "", fmt.Errorf("replacing run: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO runs (id, file, digest, base, created) VALUES (?, ?, ?, ?, ?)",
		r.RunID, r.File, r.Digest, int64(r.Base), time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return "", fmt.Errorf("saving run: %w", err)
	}

	for _, m := range r.Methods {
		if err := saveMethod(ctx, tx, r.RunID, m); err != nil {
			return "", fmt.Errorf("saving method %#x: %w", m.Address, err)
		}
	}
	for _, ts := range r.Traits {
		for i, t := range ts.Traits {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO traits (run_id, section, ordinal, kind, name, name_index, type_index, id)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				r.RunID, int64(ts.Address), i, t.Kind.String(), t.Name, t.NameIndex, t.TypeIndex, t.ID,
			); err != nil {
				return "", fmt.Errorf("saving trait %d of %#x: %w", i, ts.Address, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return r.RunID, nil
}

func saveMethod(ctx context.Context, tx *sql.Tx, runID string, m report.Method) error {
	var errText sql.NullString
	if m.Error != "" {
		errText = sql.NullString{String: m.Error, Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO methods (run_id, address, code_start, code_end, max_stack, locals, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, int64(m.Address), m.CodeStart, m.CodeEnd, m.Header.MaxStack, m.Header.LocalCount, errText,
	); err != nil {
		return err
	}
	for _, in := range m.Instructions {
		ops, err := json.Marshal(in.Operands)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO instructions (run_id, method, code_off, size, opcode, mnemonic, operands)
			 VALUES (?, ?, ?, ?, ?, ?, json(?))`,
			runID, int64(m.Address), in.Offset, in.Size, in.Opcode, in.Mnemonic, string(ops),
		); err != nil {
			return err
		}
	}
	for _, x := range m.Xrefs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO xrefs (run_id, method, code_off, opcode, idx, name, resolved, tags)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, int64(m.Address), x.Offset, x.Mnemonic(), x.Index, x.Name, x.Resolved, strings.Join(x.Tags, ","),
		); err != nil {
			return err
		}
	}
	return nil
}

// Run summarizes one stored run.
type Run struct {
	ID      string
	File    string
	Digest  string
	Created time.Time
	Methods int
	Failed  int
}

// Runs lists stored runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.file, r.digest, r.created,
		       COUNT(m.address), COUNT(m.error)
		FROM runs r LEFT JOIN methods m ON m.run_id = r.id
		GROUP BY r.id
		ORDER BY r.created DESC, r.id`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var created string
		if err := rows.Scan(&r.ID, &r.File, &r.Digest, &created, &r.Methods, &r.Failed); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Created, _ = time.Parse(time.RFC3339, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// XrefHit is one stored cross-reference.
type XrefHit struct {
	RunID  string
	Method uint64
	Offset int
	Opcode string
	Index  uint32
	Name   string
	Tags   []string
}

// FindXrefs returns stored cross-references whose name contains substr,
// optionally limited to runID.
func (s *Store) FindXrefs(ctx context.Context, runID, substr string) ([]XrefHit, error) {
	q := `SELECT run_id, method, code_off, opcode, idx, name, tags FROM xrefs WHERE instr(name, ?) > 0`
	args := []any{substr}
	if runID != "" {
		q += " AND run_id = ?"
		args = append(args, runID)
	}
	q += " ORDER BY run_id, method, code_off"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying xrefs: %w", err)
	}
	defer rows.Close()

	var out []XrefHit
	for rows.Next() {
		var h XrefHit
		var method int64
		var tags string
		if err := rows.Scan(&h.RunID, &method, &h.Offset, &h.Opcode, &h.Index, &h.Name, &tags); err != nil {
			return nil, fmt.Errorf("scanning xref: %w", err)
		}
		h.Method = uint64(method)
		if tags != "" {
			h.Tags = strings.Split(tags, ",")
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// InstructionCount returns the number of stored instructions for a method.
func (s *Store) InstructionCount(ctx context.Context, runID string, method uint64) (int, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM runs WHERE id = ?", runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrRunNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("querying run: %w", err)
	}
	var n int
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM instructions WHERE run_id = ? AND method = ?", runID, int64(method),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting instructions: %w", err)
	}
	return n, nil
}
