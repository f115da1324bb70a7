package indexdb

import (
	"context"
	"database/sql"
)

// RunRow is one indexed run. Unfinished runs have an empty Status.
type RunRow struct {
	RunID            string
	Suite            string
	Name             string
	Rotation         int
	Structure        string
	Required         bool
	Status           string
	Code             string
	Reason           string
	Tick             uint64
	WorldDigest      string
	StartedAtUnixMS  int64
	FinishedAtUnixMS int64
	DurationMS       int64
}

type StepRow struct {
	Seq   uint64
	Tick  uint64
	Kind  string
	Label string
	Error string
}

type BatchRow struct {
	ID             int64
	Total          int
	Passed         int
	Failed         int
	TimedOut       int
	RequiredFailed int
	OK             bool
	RecordedAt     string
}

const runColumns = `run_id,suite,name,rotation,COALESCE(structure,''),required,COALESCE(status,''),COALESCE(code,''),
	COALESCE(reason,''),COALESCE(tick,0),COALESCE(world_digest,''),started_at_unix_ms,COALESCE(finished_at_unix_ms,0),COALESCE(duration_ms,0)`

func scanRun(rows *sql.Rows) (RunRow, error) {
	var r RunRow
	var required int
	var tick int64
	err := rows.Scan(&r.RunID, &r.Suite, &r.Name, &r.Rotation, &r.Structure, &required, &r.Status, &r.Code,
		&r.Reason, &tick, &r.WorldDigest, &r.StartedAtUnixMS, &r.FinishedAtUnixMS, &r.DurationMS)
	r.Required = required != 0
	r.Tick = uint64(tick)
	return r, err
}

func (s *SQLiteIndex) queryRuns(ctx context.Context, q string, args ...any) ([]RunRow, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRow
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentRuns returns the newest runs first.
func (s *SQLiteIndex) RecentRuns(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at_unix_ms DESC, run_id DESC LIMIT ?`, limit)
}

// TestHistory returns the runs of one test, newest first.
func (s *SQLiteIndex) TestHistory(ctx context.Context, suite, name string, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs WHERE suite=? AND name=?
		ORDER BY started_at_unix_ms DESC, run_id DESC LIMIT ?`, suite, name, limit)
}

func (s *SQLiteIndex) RunSteps(ctx context.Context, runID string) ([]StepRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq,tick,kind,COALESCE(label,''),COALESCE(error,'') FROM steps WHERE run_id=? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StepRow
	for rows.Next() {
		var r StepRow
		var seq, tick int64
		if err := rows.Scan(&seq, &tick, &r.Kind, &r.Label, &r.Error); err != nil {
			return nil, err
		}
		r.Seq, r.Tick = uint64(seq), uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastBatch returns the most recent batch summary; ok is false when none
// was recorded.
func (s *SQLiteIndex) LastBatch(ctx context.Context) (BatchRow, bool, error) {
	var b BatchRow
	var okInt int
	err := s.db.QueryRowContext(ctx, `SELECT id,total,passed,failed,timed_out,required_failed,ok,recorded_at FROM batches ORDER BY id DESC LIMIT 1`).
		Scan(&b.ID, &b.Total, &b.Passed, &b.Failed, &b.TimedOut, &b.RequiredFailed, &okInt, &b.RecordedAt)
	if err == sql.ErrNoRows {
		return BatchRow{}, false, nil
	}
	if err != nil {
		return BatchRow{}, false, err
	}
	b.OK = okInt != 0
	return b, true, nil
}

func (s *SQLiteIndex) CatalogDigest(ctx context.Context, name string) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name=?`, name).Scan(&d)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return d, err
}
