// internal/archive/archive.go
package archive

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	// sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/tamzrod/nap-bridge/internal/nav"
)

// DefaultBatchSize is how many events are buffered before a flush.
const DefaultBatchSize = 64

const schema = `
CREATE TABLE IF NOT EXISTS ephemeris (
	session    TEXT NOT NULL,
	at         INTEGER NOT NULL,
	prn        INTEGER NOT NULL,
	channel    INTEGER NOT NULL,
	iode       INTEGER NOT NULL,
	iodc       INTEGER NOT NULL,
	healthy    INTEGER NOT NULL,
	toe_wn     INTEGER NOT NULL,
	toe_tow    REAL NOT NULL,
	time_known INTEGER NOT NULL,
	time_wn    INTEGER NOT NULL,
	time_tow   REAL NOT NULL,
	body       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS decode_failure (
	session TEXT NOT NULL,
	at      INTEGER NOT NULL,
	prn     INTEGER NOT NULL,
	channel INTEGER NOT NULL,
	code    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS unhealthy (
	session TEXT NOT NULL,
	at      INTEGER NOT NULL,
	prn     INTEGER NOT NULL,
	channel INTEGER NOT NULL,
	health  INTEGER NOT NULL
);`

type kind int

const (
	kindEphemeris kind = iota
	kindDecodeFailure
	kindUnhealthy
)

type event struct {
	kind kind
	at   time.Time
	r    nav.Report
}

// Archive records supervisor events in SQLite. It implements nav.Reporter.
// Events are buffered and written in one transaction per batch.
type Archive struct {
	db      *sql.DB
	ownsDB  bool
	session string
	now     func() time.Time

	mu        sync.Mutex
	batchSize int
	pending   []event
}

var _ nav.Reporter = (*Archive)(nil)

// Open creates or opens the database file at path. An empty path picks a
// fresh file name. Buffered events are flushed at process exit.
func Open(path string) (*Archive, error) {
	session := xid.New().String()
	if path == "" {
		path = "napbridge_" + session + ".sqlite3"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}

	a, err := newArchive(db, session)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.ownsDB = true

	fmt.Fprintf(os.Stderr, "archive: recording to %s (session %s)\n", path, session)
	atexit.Register(func() {
		if err := a.Flush(); err != nil {
			log.Printf("archive: flush at exit: %v", err)
		}
	})

	return a, nil
}

// NewWithDB records into an existing database.
func NewWithDB(db *sql.DB) (*Archive, error) {
	if db == nil {
		return nil, errors.New("archive: db required")
	}
	return newArchive(db, xid.New().String())
}

func newArchive(db *sql.DB, session string) (*Archive, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("archive: create tables: %w", err)
	}
	return &Archive{
		db:        db,
		session:   session,
		now:       time.Now,
		batchSize: DefaultBatchSize,
	}, nil
}

// Session identifies the rows written by this process.
func (a *Archive) Session() string {
	return a.session
}

// SetBatchSize changes the flush threshold. n < 1 means 1.
func (a *Archive) SetBatchSize(n int) {
	if n < 1 {
		n = 1
	}
	a.mu.Lock()
	a.batchSize = n
	a.mu.Unlock()
}

// ---- nav.Reporter ----

func (a *Archive) DecodeFailed(r nav.Report) { a.add(kindDecodeFailure, r) }

func (a *Archive) Unhealthy(r nav.Report) { a.add(kindUnhealthy, r) }

func (a *Archive) NewEphemeris(r nav.Report) { a.add(kindEphemeris, r) }

func (a *Archive) add(k kind, r nav.Report) {
	a.mu.Lock()
	a.pending = append(a.pending, event{kind: k, at: a.now(), r: r})
	full := len(a.pending) >= a.batchSize
	a.mu.Unlock()

	if full {
		if err := a.Flush(); err != nil {
			log.Printf("archive: %v", err)
		}
	}
}

// Flush writes every buffered event. On error the batch is kept.
func (a *Archive) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.pending) == 0 {
		return nil
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("archive: begin: %w", err)
	}

	for _, e := range a.pending {
		if err := a.insert(tx, e); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}

	a.pending = a.pending[:0]
	return nil
}

func (a *Archive) insert(tx *sql.Tx, e event) error {
	r := e.r
	at := e.at.UnixNano()

	var err error
	switch e.kind {
	case kindEphemeris:
		var body []byte
		body, err = json.Marshal(r.Ephemeris)
		if err != nil {
			return fmt.Errorf("archive: encode ephemeris: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO ephemeris VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.session, at, r.PRN, r.Channel,
			r.Ephemeris.IODE, r.Ephemeris.IODC, r.Ephemeris.Healthy,
			r.Ephemeris.TOE.WN, r.Ephemeris.TOE.TOW,
			r.TimeKnown, r.Time.WN, r.Time.TOW,
			string(body),
		)
	case kindDecodeFailure:
		_, err = tx.Exec(
			`INSERT INTO decode_failure VALUES (?, ?, ?, ?, ?)`,
			a.session, at, r.PRN, r.Channel, r.Code,
		)
	case kindUnhealthy:
		_, err = tx.Exec(
			`INSERT INTO unhealthy VALUES (?, ?, ?, ?, ?)`,
			a.session, at, r.PRN, r.Channel, r.Ephemeris.Health,
		)
	}
	if err != nil {
		return fmt.Errorf("archive: insert: %w", err)
	}
	return nil
}

// Latest returns the most recent archived ephemeris for prn from any
// session.
func (a *Archive) Latest(prn uint8) (nav.Ephemeris, bool, error) {
	var body string
	err := a.db.QueryRow(
		`SELECT body FROM ephemeris WHERE prn = ? ORDER BY at DESC LIMIT 1`, prn,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nav.Ephemeris{}, false, nil
	}
	if err != nil {
		return nav.Ephemeris{}, false, fmt.Errorf("archive: query: %w", err)
	}

	var eph nav.Ephemeris
	if err := json.Unmarshal([]byte(body), &eph); err != nil {
		return nav.Ephemeris{}, false, fmt.Errorf("archive: decode ephemeris: %w", err)
	}
	return eph, true, nil
}

// Close flushes and, for databases opened by Open, closes the file.
func (a *Archive) Close() error {
	err := a.Flush()
	if a.ownsDB {
		if cerr := a.db.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
