// Package db persists scan runs, their packets and every candidate decoding
// in SQLite so that a long search can be inspected after the fact.
package db

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// Open opens (or creates) the database at path and brings its schema up to
// date.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases and write transactions
	// consistent.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Run is one invocation of the scanner.
type Run struct {
	ID         string
	Width      int
	Source     string
	Options    string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Packet is a stored packet and the outcome of its search.
type Packet struct {
	Index     int
	Raw       []byte
	// Expected is empty when the packet was too long to count.
	Expected  string
	Emitted   int
	Truncated bool
	Reason    string
}

// Candidate is a stored decoding.
type Candidate struct {
	Ordinal int
	Breaks  []int
	Values  []string
}

// Runs lists every run, most recent first.
func (db *DB) Runs() ([]Run, error) {
	rows, err := db.Query(`
		SELECT run_id, width, source, options, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, run_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Width, &r.Source, &r.Options, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, started).UTC()
		if finished.Valid {
			t := time.Unix(0, finished.Int64).UTC()
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Packets lists the packets of a run in source order.
func (db *DB) Packets(runID string) ([]Packet, error) {
	rows, err := db.Query(`
		SELECT packet_index, raw, expected, emitted, truncated, reason
		FROM packets
		WHERE run_id = ?
		ORDER BY packet_index
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query packets: %w", err)
	}
	defer rows.Close()

	var packets []Packet
	for rows.Next() {
		var (
			p        Packet
			expected sql.NullString
		)
		if err := rows.Scan(&p.Index, &p.Raw, &expected, &p.Emitted, &p.Truncated, &p.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan packet: %w", err)
		}
		p.Expected = expected.String
		packets = append(packets, p)
	}
	return packets, rows.Err()
}

// Candidates returns the decodings stored for one packet in emission order.
func (db *DB) Candidates(runID string, packetIndex int) ([]Candidate, error) {
	rows, err := db.Query(`
		SELECT ordinal, breaks, vals
		FROM candidates
		WHERE run_id = ? AND packet_index = ?
		ORDER BY ordinal
	`, runID, packetIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var (
			c             Candidate
			breaks, value string
		)
		if err := rows.Scan(&c.Ordinal, &breaks, &value); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		if c.Breaks, err = parseBreaks(breaks); err != nil {
			return nil, fmt.Errorf("candidate %d: %w", c.Ordinal, err)
		}
		c.Values = splitList(value)
		out = append(out, c)
	}
	return out, rows.Err()
}

// LayoutCount is the number of candidates sharing one break layout.
type LayoutCount struct {
	Breaks string
	Count  int
}

// Layouts counts candidates per layout across a run, most common first.
func (db *DB) Layouts(runID string) ([]LayoutCount, error) {
	rows, err := db.Query(`
		SELECT breaks, COUNT(*) AS n
		FROM candidates
		WHERE run_id = ?
		GROUP BY breaks
		ORDER BY n DESC, breaks
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query layouts: %w", err)
	}
	defer rows.Close()

	var out []LayoutCount
	for rows.Next() {
		var lc LayoutCount
		if err := rows.Scan(&lc.Breaks, &lc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan layout: %w", err)
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

func parseBreaks(s string) ([]int, error) {
	parts := splitList(s)
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid break %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}
