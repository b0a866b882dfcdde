// ════════════════════════════════════════════════════════════════════════════════════════════════
// Trace Audit
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Multiple Change Detector
// Component: Offline Verification Of The Event Protocol
//
// Description:
//   Loads a drained event stream into an in-memory SQLite database and checks it per signal with
//   window functions. Each signal's events, ordered by stream position, must alternate C, D, C,
//   D, ... starting with C. The check reports every way a stream can break that rule together
//   with the detection latency of the well-formed pairs.
//
// Classification per signal, in stream order:
//   matched   D directly preceded by C
//   missed    C directly followed by another C
//   pending   C with nothing after it
//   spurious  D not preceded by C
//   late      matched D whose stamp is earlier than its C
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package audit

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"pacedetect/types"
)

// ErrMalformed marks a trace line that does not follow the protocol.
var ErrMalformed = errors.New("audit: malformed trace line")

// ParseTrace reads protocol lines from r. Empty lines are skipped.
func ParseTrace(r io.Reader) ([]types.Event, error) {
	var out []types.Event
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		ev, err := parseLine(text)
		if err != nil {
			return nil, fmt.Errorf("%w %d: %q: %v", ErrMalformed, line, text, err)
		}
		out = append(out, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("audit: read trace: %w", err)
	}
	return out, nil
}

func parseLine(text string) (types.Event, error) {
	f := strings.Fields(text)
	if len(f) != 3 {
		return types.Event{}, fmt.Errorf("want 3 fields, got %d", len(f))
	}
	if len(f[0]) != 1 || !types.Kind(f[0][0]).Valid() {
		return types.Event{}, fmt.Errorf("unknown kind %q", f[0])
	}
	idx, err := strconv.ParseUint(f[1], 10, 32)
	if err != nil {
		return types.Event{}, err
	}
	stamp, err := strconv.ParseInt(f[2], 10, 64)
	if err != nil {
		return types.Event{}, err
	}
	return types.Event{Kind: types.Kind(f[0][0]), Index: uint32(idx), Stamp: stamp}, nil
}

// Report summarises one audited stream.
type Report struct {
	Changes    int64 `json:"changes"`
	Detections int64 `json:"detections"`
	Signals    int64 `json:"signals"`
	Matched    int64 `json:"matched"`
	Missed     int64 `json:"missed"`
	Pending    int64 `json:"pending"`
	Spurious   int64 `json:"spurious"`
	Late       int64 `json:"late"`

	LatencyMin  int64   `json:"latency_min_us"`
	LatencyMean float64 `json:"latency_mean_us"`
	LatencyMax  int64   `json:"latency_max_us"`
}

// Clean reports whether every detection answered exactly one change and no
// change was overtaken by another.
func (r Report) Clean() bool {
	return r.Missed == 0 && r.Spurious == 0 && r.Late == 0
}

const schema = `
CREATE TABLE events (
	seq   INTEGER PRIMARY KEY,
	kind  TEXT    NOT NULL CHECK (kind IN ('C', 'D')),
	idx   INTEGER NOT NULL,
	stamp INTEGER NOT NULL
);
CREATE INDEX events_by_signal ON events (idx, seq);
`

const checkQuery = `
WITH ordered AS (
	SELECT kind, stamp,
		LAG(kind)   OVER w AS prev_kind,
		LAG(stamp)  OVER w AS prev_stamp,
		LEAD(kind)  OVER w AS next_kind
	FROM events
	WINDOW w AS (PARTITION BY idx ORDER BY seq)
),
pairs AS (
	SELECT stamp - prev_stamp AS latency
	FROM ordered
	WHERE kind = 'D' AND prev_kind = 'C'
)
SELECT
	(SELECT COUNT(*) FROM ordered WHERE kind = 'C'),
	(SELECT COUNT(*) FROM ordered WHERE kind = 'D'),
	(SELECT COUNT(DISTINCT idx) FROM events),
	(SELECT COUNT(*) FROM pairs),
	(SELECT COUNT(*) FROM ordered WHERE kind = 'C' AND next_kind = 'C'),
	(SELECT COUNT(*) FROM ordered WHERE kind = 'C' AND next_kind IS NULL),
	(SELECT COUNT(*) FROM ordered WHERE kind = 'D' AND (prev_kind IS NULL OR prev_kind = 'D')),
	(SELECT COUNT(*) FROM pairs WHERE latency < 0),
	(SELECT MIN(latency) FROM pairs),
	(SELECT AVG(latency) FROM pairs),
	(SELECT MAX(latency) FROM pairs)
`

// Audit is an in-memory event store.
type Audit struct {
	db   *sql.DB
	next int64
}

// Open creates an empty in-memory store.
func Open() (*Audit, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: schema: %w", err)
	}
	return &Audit{db: db}, nil
}

// Close releases the database.
func (a *Audit) Close() error {
	return a.db.Close()
}

// Load appends events in stream order within one transaction.
func (a *Audit) Load(ctx context.Context, events []types.Event) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("audit: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (seq, kind, idx, stamp) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("audit: prepare: %w", err)
	}
	defer stmt.Close()

	seq := a.next
	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, seq, ev.Kind.String(), int64(ev.Index), ev.Stamp); err != nil {
			return fmt.Errorf("audit: insert %d: %w", seq, err)
		}
		seq++
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("audit: commit: %w", err)
	}
	a.next = seq
	return nil
}

// Check classifies the loaded stream.
func (a *Audit) Check(ctx context.Context) (Report, error) {
	var (
		r      Report
		lo, hi sql.NullInt64
		mean   sql.NullFloat64
	)
	err := a.db.QueryRowContext(ctx, checkQuery).Scan(
		&r.Changes, &r.Detections, &r.Signals,
		&r.Matched, &r.Missed, &r.Pending, &r.Spurious, &r.Late,
		&lo, &mean, &hi,
	)
	if err != nil {
		return Report{}, fmt.Errorf("audit: check: %w", err)
	}
	r.LatencyMin = lo.Int64
	r.LatencyMean = mean.Float64
	r.LatencyMax = hi.Int64
	return r, nil
}

// Verify audits events in a throwaway store.
func Verify(ctx context.Context, events []types.Event) (Report, error) {
	a, err := Open()
	if err != nil {
		return Report{}, err
	}
	defer a.Close()

	if err := a.Load(ctx, events); err != nil {
		return Report{}, err
	}
	return a.Check(ctx)
}
