// Package history persists a bounded per-agent transcript of operator
// exchanges so a chat panel can restore context when it reopens.
package history

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/helixir/review-console/internal/protocol"
)

// Window is how many of the most recent entries are retained per peer.
const Window = 20

// Store is a sqlite-backed transcript store keyed by peer (agent)
// identity. Unreadable or corrupt stored payloads are treated as "no
// history", never as a fatal error.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open creates (or opens) the store at dbPath and runs the schema.
func Open(dbPath string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcripts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		peer_id TEXT NOT NULL,
		role TEXT NOT NULL,
		body TEXT NOT NULL,
		sources TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transcripts_peer ON transcripts(peer_id, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load returns the most recent entries for peer, oldest first, at most
// Window of them. Any failure yields an empty transcript.
func (s *Store) Load(peer string) []protocol.Entry {
	rows, err := s.db.Query(
		`SELECT role, body, sources, created_at FROM transcripts
		 WHERE peer_id = ?
		 ORDER BY id DESC LIMIT ?`, peer, Window,
	)
	if err != nil {
		s.log.Debug("history load failed, starting empty", "peer", peer, "err", err)
		return nil
	}
	defer rows.Close()

	var newest []protocol.Entry
	for rows.Next() {
		var (
			entry   protocol.Entry
			sources sql.NullString
			at      time.Time
		)
		if err := rows.Scan(&entry.Role, &entry.Text, &sources, &at); err != nil {
			s.log.Debug("history row unreadable, skipping", "peer", peer, "err", err)
			continue
		}
		entry.At = at
		if sources.Valid && sources.String != "" {
			// A corrupt sources blob degrades to an entry without
			// evidence rather than an error.
			if err := json.Unmarshal([]byte(sources.String), &entry.Sources); err != nil {
				entry.Sources = nil
			}
		}
		newest = append(newest, entry)
	}
	if rows.Err() != nil {
		return nil
	}

	// Rows came newest-first; restore original order.
	for i, j := 0, len(newest)-1; i < j; i, j = i+1, j-1 {
		newest[i], newest[j] = newest[j], newest[i]
	}
	return newest
}

// Append persists entries for peer and prunes the transcript down to
// the retention window.
func (s *Store) Append(peer string, entries ...protocol.Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, entry := range entries {
		var sources any
		if len(entry.Sources) > 0 {
			data, err := json.Marshal(entry.Sources)
			if err == nil {
				sources = string(data)
			}
		}
		at := entry.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if _, err := tx.Exec(
			`INSERT INTO transcripts (peer_id, role, body, sources, created_at) VALUES (?, ?, ?, ?, ?)`,
			peer, entry.Role, entry.Text, sources, at,
		); err != nil {
			return err
		}
	}

	// Keep only the newest Window rows for this peer.
	if _, err := tx.Exec(
		`DELETE FROM transcripts WHERE peer_id = ? AND id NOT IN (
			SELECT id FROM transcripts WHERE peer_id = ? ORDER BY id DESC LIMIT ?
		)`, peer, peer, Window,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// Clear removes the stored transcript for peer.
func (s *Store) Clear(peer string) error {
	_, err := s.db.Exec(`DELETE FROM transcripts WHERE peer_id = ?`, peer)
	return err
}
