package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/banshee-data/fieldscan/internal/interpret"
	"github.com/banshee-data/fieldscan/internal/sink"
	"github.com/banshee-data/fieldscan/internal/timeutil"
)

// ErrNoOpenPacket is returned when a candidate arrives outside Begin/End.
var ErrNoOpenPacket = errors.New("db: no packet in progress")

// Store records one run. It implements sink.Sink; each packet and its
// candidates are written in a single transaction committed by End.
type Store struct {
	db    *DB
	runID string
	clock timeutil.Clock

	tx   *sql.Tx
	stmt *sql.Stmt
}

// StartRun inserts a new run row and returns a Store writing into it. source
// describes where packets come from and options the interpretation used.
func (db *DB) StartRun(width int, source, options string, clock timeutil.Clock) (*Store, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &Store{db: db, runID: uuid.New().String(), clock: clock}
	_, err := db.Exec(`
		INSERT INTO runs (run_id, width, source, options, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, s.runID, width, source, options, clock.Now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return s, nil
}

// RunID returns the identifier of the run being recorded.
func (s *Store) RunID() string { return s.runID }

func (s *Store) Begin(p sink.PacketInfo) error {
	if s.tx != nil {
		s.rollback()
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO packets (run_id, packet_index, raw)
		VALUES (?, ?, ?)
	`, s.runID, p.Index, p.Packet.Bytes()); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to insert packet %d: %w", p.Index, err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO candidates (run_id, packet_index, ordinal, breaks, vals)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare candidate insert: %w", err)
	}
	s.tx, s.stmt = tx, stmt
	return nil
}

func (s *Store) Candidate(p sink.PacketInfo, c sink.Candidate) error {
	if s.stmt == nil {
		return ErrNoOpenPacket
	}
	vals := strings.Join(interpret.Strings(c.Values), ",")
	if _, err := s.stmt.Exec(s.runID, p.Index, c.Ordinal, c.Decoding.Layout(), vals); err != nil {
		return fmt.Errorf("failed to insert candidate %d: %w", c.Ordinal, err)
	}
	return nil
}

func (s *Store) End(p sink.PacketInfo, sum sink.Summary) error {
	if s.tx == nil {
		return ErrNoOpenPacket
	}
	var expected sql.NullString
	if !sum.Truncated {
		expected = sql.NullString{String: strconv.Itoa(sum.Emitted), Valid: true}
	} else if n := p.Expected(); n != nil {
		expected = sql.NullString{String: n.String(), Valid: true}
	}
	if _, err := s.tx.Exec(`
		UPDATE packets SET expected = ?, emitted = ?, truncated = ?, reason = ?
		WHERE run_id = ? AND packet_index = ?
	`, expected, sum.Emitted, sum.Truncated, sum.Reason, s.runID, p.Index); err != nil {
		s.rollback()
		return fmt.Errorf("failed to update packet %d: %w", p.Index, err)
	}
	s.stmt.Close()
	err := s.tx.Commit()
	s.tx, s.stmt = nil, nil
	if err != nil {
		return fmt.Errorf("failed to commit packet %d: %w", p.Index, err)
	}
	return nil
}

// Close discards an unfinished packet and stamps the run as finished. The
// database itself stays open.
func (s *Store) Close() error {
	if s.tx != nil {
		s.rollback()
	}
	if _, err := s.db.Exec(`UPDATE runs SET finished_at = ? WHERE run_id = ?`, s.clock.Now().UnixNano(), s.runID); err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

func (s *Store) rollback() {
	if s.stmt != nil {
		s.stmt.Close()
	}
	s.tx.Rollback()
	s.tx, s.stmt = nil, nil
}
