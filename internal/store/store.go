package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed peer registry and usage ledger.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the SQLite database at path and initialises the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create data dir %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// The foreign key is declarative only: SQLite does not enforce it unless
// asked to, and enforcement would make "delete peer, keep history"
// impossible.
func (s *Store) initSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS peers (
  public_key TEXT PRIMARY KEY,
  name TEXT,
  email TEXT,
  added_on TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS monthly_usage (
  public_key TEXT,
  year_month TEXT,
  accumulated_received INTEGER,
  accumulated_sent INTEGER,
  last_received INTEGER,
  last_sent INTEGER,
  last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (public_key, year_month),
  FOREIGN KEY (public_key) REFERENCES peers(public_key)
);`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	return nil
}

// RecordSample folds one raw counter sample into the accumulated totals
// for (pubKey, period) and returns the received/sent increments that
// were added. This is the only place counter resets are detected: a raw
// value below the last observed one re-baselines that field, adding the
// full raw value to the accumulator. The two fields are handled
// independently.
func (s *Store) RecordSample(pubKey string, received, sent int64, period string) (recvInc, sentInc int64, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT OR IGNORE INTO peers (public_key) VALUES (?)`, pubKey); err != nil {
		return 0, 0, fmt.Errorf("store: ensure peer %s: %w", pubKey, err)
	}

	var accR, accS, lastR, lastS int64
	err = tx.QueryRow(
		`SELECT accumulated_received, accumulated_sent, last_received, last_sent
		 FROM monthly_usage WHERE public_key = ? AND year_month = ?`,
		pubKey, period,
	).Scan(&accR, &accS, &lastR, &lastS)

	switch {
	case err == sql.ErrNoRows:
		recvInc, sentInc = received, sent
		if _, err := tx.Exec(
			`INSERT INTO monthly_usage
			 (public_key, year_month, accumulated_received, accumulated_sent, last_received, last_sent)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			pubKey, period, received, sent, received, sent,
		); err != nil {
			return 0, 0, fmt.Errorf("store: insert usage %s/%s: %w", pubKey, period, err)
		}
	case err != nil:
		return 0, 0, fmt.Errorf("store: select usage %s/%s: %w", pubKey, period, err)
	default:
		recvInc, sentInc = increment(received, lastR), increment(sent, lastS)
		if _, err := tx.Exec(
			`UPDATE monthly_usage
			 SET accumulated_received = ?, accumulated_sent = ?,
			     last_received = ?, last_sent = ?, last_updated = CURRENT_TIMESTAMP
			 WHERE public_key = ? AND year_month = ?`,
			accR+recvInc, accS+sentInc,
			received, sent, pubKey, period,
		); err != nil {
			return 0, 0, fmt.Errorf("store: update usage %s/%s: %w", pubKey, period, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("store: commit sample %s/%s: %w", pubKey, period, err)
	}
	return recvInc, sentInc, nil
}

// increment returns the amount to add to an accumulator given the
// current and previously observed raw counter values.
func increment(curr, last int64) int64 {
	if curr < last {
		// Counter reset: the interface restarted and the counter began
		// again from zero, so the full current value is new traffic.
		return curr
	}
	return curr - last
}

// GetUsage returns usage rows joined with peer metadata, newest period
// first. Empty pubKey/period match everything. With monthlyOnly set,
// each row reports current minus previous-month accumulated values; a
// negative difference (reset across the month boundary) falls back to
// the full current value, and a missing previous month counts as zero.
func (s *Store) GetUsage(pubKey, period string, monthlyOnly bool) ([]UsageRow, error) {
	query := `
		SELECT m.public_key, p.name, p.email, m.year_month,
		       m.accumulated_received, m.accumulated_sent, m.last_updated
		FROM monthly_usage m
		LEFT JOIN peers p ON m.public_key = p.public_key`
	var conds []string
	var args []any
	if pubKey != "" {
		conds = append(conds, "m.public_key = ?")
		args = append(args, pubKey)
	}
	if period != "" {
		conds = append(conds, "m.year_month = ?")
		args = append(args, period)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY m.year_month DESC, m.last_updated DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query usage: %w", err)
	}
	defer rows.Close()

	var out []UsageRow
	for rows.Next() {
		var r UsageRow
		var name, email sql.NullString
		if err := rows.Scan(&r.PublicKey, &name, &email, &r.Period,
			&r.Received, &r.Sent, &r.LastUpdated); err != nil {
			return nil, fmt.Errorf("store: scan usage row: %w", err)
		}
		r.Name = name.String
		r.Email = email.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate usage rows: %w", err)
	}

	if monthlyOnly {
		for i := range out {
			if err := s.subtractPreviousMonth(&out[i]); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (s *Store) subtractPreviousMonth(r *UsageRow) error {
	prev, err := previousPeriod(r.Period)
	if err != nil {
		return fmt.Errorf("store: usage row %s/%s: %w", r.PublicKey, r.Period, err)
	}

	var prevR, prevS int64
	err = s.db.QueryRow(
		`SELECT accumulated_received, accumulated_sent
		 FROM monthly_usage WHERE public_key = ? AND year_month = ?`,
		r.PublicKey, prev,
	).Scan(&prevR, &prevS)
	if err == sql.ErrNoRows {
		return nil // no previous month, full accumulated value stands
	}
	if err != nil {
		return fmt.Errorf("store: select previous month %s/%s: %w", r.PublicKey, prev, err)
	}

	if monthly := r.Received - prevR; monthly >= 0 {
		r.Received = monthly
	}
	if monthly := r.Sent - prevS; monthly >= 0 {
		r.Sent = monthly
	}
	return nil
}

// previousPeriod returns the calendar month before a "YYYY-MM" period.
func previousPeriod(period string) (string, error) {
	year, month, ok := strings.Cut(period, "-")
	if !ok {
		return "", fmt.Errorf("bad period %q", period)
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return "", fmt.Errorf("bad period %q", period)
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return "", fmt.Errorf("bad period %q", period)
	}
	if m == 1 {
		return fmt.Sprintf("%04d-12", y-1), nil
	}
	return fmt.Sprintf("%04d-%02d", y, m-1), nil
}

// UpsertPeer registers or updates a peer. Nil fields are left untouched
// on update and stored as NULL on insert. Calling with both fields nil
// on an existing peer is a no-op that still succeeds.
func (s *Store) UpsertPeer(pubKey string, name, email *string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow(`SELECT 1 FROM peers WHERE public_key = ?`, pubKey).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.Exec(
			`INSERT INTO peers (public_key, name, email) VALUES (?, ?, ?)`,
			pubKey, name, email,
		); err != nil {
			return fmt.Errorf("store: insert peer %s: %w", pubKey, err)
		}
	case err != nil:
		return fmt.Errorf("store: select peer %s: %w", pubKey, err)
	default:
		var sets []string
		var args []any
		if name != nil {
			sets = append(sets, "name = ?")
			args = append(args, *name)
		}
		if email != nil {
			sets = append(sets, "email = ?")
			args = append(args, *email)
		}
		if len(sets) > 0 {
			args = append(args, pubKey)
			if _, err := tx.Exec(
				"UPDATE peers SET "+strings.Join(sets, ", ")+" WHERE public_key = ?",
				args...,
			); err != nil {
				return fmt.Errorf("store: update peer %s: %w", pubKey, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit upsert %s: %w", pubKey, err)
	}
	return nil
}

// EnsurePeer inserts a bare registry row if the key is new.
func (s *Store) EnsurePeer(pubKey string) error {
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO peers (public_key) VALUES (?)`, pubKey); err != nil {
		return fmt.Errorf("store: ensure peer %s: %w", pubKey, err)
	}
	return nil
}

// FindByEmail returns the public keys registered under email
// (case-sensitive exact match). Emails are not unique.
func (s *Store) FindByEmail(email string) ([]string, error) {
	rows, err := s.db.Query(`SELECT public_key FROM peers WHERE email = ?`, email)
	if err != nil {
		return nil, fmt.Errorf("store: find by email: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("store: scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate keys: %w", err)
	}
	return keys, nil
}

// DeletePeer removes the registry row and, unless keepHistory is set,
// all usage rows for the key. Both deletions happen in one transaction:
// either everything goes or nothing does.
func (s *Store) DeletePeer(pubKey string, keepHistory bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	if !keepHistory {
		if _, err := tx.Exec(`DELETE FROM monthly_usage WHERE public_key = ?`, pubKey); err != nil {
			return fmt.Errorf("store: delete usage for %s: %w", pubKey, err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM peers WHERE public_key = ?`, pubKey); err != nil {
		return fmt.Errorf("store: delete peer %s: %w", pubKey, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit delete %s: %w", pubKey, err)
	}
	s.logger.Info("peer deleted from registry", "public_key", pubKey, "keep_history", keepHistory)
	return nil
}

// ListPeers returns all registry rows, newest first.
func (s *Store) ListPeers() ([]Peer, error) {
	rows, err := s.db.Query(
		`SELECT public_key, name, email, added_on FROM peers ORDER BY added_on DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: query peers: %w", err)
	}
	defer rows.Close()

	var out []Peer
	for rows.Next() {
		var p Peer
		var name, email sql.NullString
		if err := rows.Scan(&p.PublicKey, &name, &email, &p.AddedOn); err != nil {
			return nil, fmt.Errorf("store: scan peer: %w", err)
		}
		p.Name = name.String
		p.Email = email.String
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate peers: %w", err)
	}
	return out, nil
}

// PublicKeys returns the registry key set.
func (s *Store) PublicKeys() (map[string]struct{}, error) {
	rows, err := s.db.Query(`SELECT public_key FROM peers`)
	if err != nil {
		return nil, fmt.Errorf("store: query keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("store: scan key: %w", err)
		}
		keys[k] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate keys: %w", err)
	}
	return keys, nil
}
