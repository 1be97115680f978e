package diag

import (
	"bytes"
	"database/sql"
	"io"
	"log"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	_ "github.com/mattn/go-sqlite3"
)

// compressAbove is the payload size beyond which raw payloads (typically
// the full malformed provider response) are gzip-compressed at rest.
const compressAbove = 512

// Store is the sqlite-backed recorder. It also keeps finished game results
// for the history endpoint.
type Store struct {
	conn   *sql.DB
	mu     sync.Mutex
	logger *log.Logger
}

// NewStore opens (or creates) the diagnostics database.
func NewStore(path string, logger *log.Logger) (*Store, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Store{conn: conn, logger: logger}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS diagnostics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		game_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		kind TEXT NOT NULL,
		agent_id INTEGER,
		detail TEXT,
		payload BLOB,
		compressed INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		game_id TEXT NOT NULL,
		winner TEXT NOT NULL,
		reason TEXT NOT NULL,
		seed INTEGER NOT NULL,
		ticks INTEGER NOT NULL,
		rounds INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_diagnostics_game_id ON diagnostics(game_id);
	CREATE INDEX IF NOT EXISTS idx_results_game_id ON results(game_id);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Record inserts one diagnostics row. Failures are logged, never returned:
// diagnostics must not break the game loop.
func (s *Store) Record(rec Record) {
	payload := rec.Payload
	compressed := 0
	if len(payload) > compressAbove {
		if packed, ok := gzipBytes(payload); ok {
			payload = packed
			compressed = 1
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(`
		INSERT INTO diagnostics (game_id, tick, kind, agent_id, detail, payload, compressed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.GameID, rec.Tick, rec.Kind, rec.AgentID, rec.Detail, payload, compressed)
	if err != nil {
		s.logger.Printf("diag: record failed: %v", err)
	}
}

// SaveResult stores a finished game's outcome.
func (s *Store) SaveResult(gameID, winner, reason string, seed int64, ticks uint64, rounds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(`
		INSERT INTO results (game_id, winner, reason, seed, ticks, rounds)
		VALUES (?, ?, ?, ?, ?, ?)
	`, gameID, winner, reason, seed, ticks, rounds)
	return err
}

// Result is one stored game outcome.
type Result struct {
	GameID  string    `json:"game_id"`
	Winner  string    `json:"winner"`
	Reason  string    `json:"reason"`
	Seed    int64     `json:"seed"`
	Ticks   uint64    `json:"ticks"`
	Rounds  int       `json:"rounds"`
	SavedAt time.Time `json:"saved_at"`
}

// Results returns stored outcomes for a game, newest first.
func (s *Store) Results(gameID string, limit int) ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.conn.Query(`
		SELECT game_id, winner, reason, seed, ticks, rounds, created_at
		FROM results WHERE game_id = ? ORDER BY id DESC LIMIT ?
	`, gameID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.GameID, &r.Winner, &r.Reason, &r.Seed, &r.Ticks, &r.Rounds, &r.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Events returns diagnostics rows for a game, newest first, payloads
// decompressed.
func (s *Store) Events(gameID string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.conn.Query(`
		SELECT game_id, tick, kind, agent_id, detail, payload, compressed, created_at
		FROM diagnostics WHERE game_id = ? ORDER BY id DESC LIMIT ?
	`, gameID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec        Record
			agentID    sql.NullInt64
			detail     sql.NullString
			payload    []byte
			compressed int
		)
		if err := rows.Scan(&rec.GameID, &rec.Tick, &rec.Kind, &agentID, &detail, &payload, &compressed, &rec.At); err != nil {
			return nil, err
		}
		rec.AgentID = int(agentID.Int64)
		rec.Detail = detail.String
		if compressed == 1 {
			if unpacked, ok := gunzipBytes(payload); ok {
				payload = unpacked
			}
		}
		rec.Payload = payload
		out = append(out, rec)
	}
	return out, rows.Err()
}

func gzipBytes(b []byte) ([]byte, bool) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

func gunzipBytes(b []byte) ([]byte, bool) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, false
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, false
	}
	return out, true
}
