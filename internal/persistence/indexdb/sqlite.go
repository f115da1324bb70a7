package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelcraft.ai/gametest/internal/host/catalogs"
	"voxelcraft.ai/gametest/internal/protocol"
)

// SQLiteIndex is a queryable secondary index of run events. Writes go
// through a buffered channel to a single writer goroutine; when the queue is
// full events are dropped and counted. The JSONL run log stays the source of
// truth. Queries share the writer's single connection; call Flush before
// reading.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropRunTotal     atomic.Uint64
	dropStepTotal    atomic.Uint64
	dropSummaryTotal atomic.Uint64
	writeErrTotal    atomic.Uint64
}

type reqKind int

const (
	reqRunStarted reqKind = iota + 1
	reqRunFinished
	reqStep
	reqSummary
	reqFlush
)

type req struct {
	kind reqKind

	started  protocol.RunStartedMsg
	finished protocol.RunFinishedMsg
	step     protocol.StepMsg
	summary  protocol.SummaryMsg
	done     chan struct{}
}

// Stats is a point-in-time view of the writer queue.
type Stats struct {
	QueueDepth       int
	QueueCapacity    int
	DropRunTotal     uint64
	DropStepTotal    uint64
	DropSummaryTotal uint64
	WriteErrTotal    uint64
}

const defaultQueue = 65536

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, defaultQueue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			suite TEXT NOT NULL,
			name TEXT NOT NULL,
			rotation INTEGER NOT NULL,
			structure TEXT,
			max_ticks INTEGER NOT NULL,
			required INTEGER NOT NULL,
			started_at_unix_ms INTEGER NOT NULL,
			status TEXT,
			code TEXT,
			reason TEXT,
			tick INTEGER,
			world_digest TEXT,
			finished_at_unix_ms INTEGER,
			duration_ms INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_test ON runs(suite, name, started_at_unix_ms);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);`,
		`CREATE TABLE IF NOT EXISTS steps (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			kind TEXT NOT NULL,
			label TEXT,
			error TEXT,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS batches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			total INTEGER NOT NULL,
			passed INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			timed_out INTEGER NOT NULL,
			required_failed INTEGER NOT NULL,
			ok INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
		DropRunTotal:     s.dropRunTotal.Load(),
		DropStepTotal:    s.dropStepTotal.Load(),
		DropSummaryTotal: s.dropSummaryTotal.Load(),
		WriteErrTotal:    s.writeErrTotal.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) RunStarted(m protocol.RunStartedMsg) {
	s.enqueue(req{kind: reqRunStarted, started: m}, &s.dropRunTotal)
}

func (s *SQLiteIndex) StepExecuted(m protocol.StepMsg) {
	s.enqueue(req{kind: reqStep, step: m}, &s.dropStepTotal)
}

func (s *SQLiteIndex) RunFinished(m protocol.RunFinishedMsg) {
	s.enqueue(req{kind: reqRunFinished, finished: m}, &s.dropRunTotal)
}

func (s *SQLiteIndex) BatchFinished(m protocol.SummaryMsg) {
	s.enqueue(req{kind: reqSummary, summary: m}, &s.dropSummaryTotal)
}

// Flush blocks until every event queued before the call is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return errors.New("index closed")
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpsertCatalogs records the digests of the catalogs the batch ran against.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs) error {
	if s == nil || cats == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "blocks.json")); err == nil {
			rows = append(rows, kv{name: "blocks_defs", digest: cats.Blocks.DefsDigest, json: b})
		}
		if b, err := os.ReadFile(filepath.Join(configDir, "entities.json")); err == nil {
			rows = append(rows, kv{name: "entities", digest: cats.Entities.Digest, json: b})
		}
	}
	if b, _ := json.Marshal(cats.Blocks.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "blocks_palette", digest: cats.Blocks.PaletteDigest, json: b})
	}
	{
		ids := make([]string, 0, len(cats.Structures.ByID))
		for id := range cats.Structures.ByID {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		if b, _ := json.Marshal(ids); len(b) > 0 {
			rows = append(rows, kv{name: "structures", digest: cats.Structures.Digest, json: b})
		}
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('protocol_version',?)`, protocol.Version); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,suite,name,rotation,structure,max_ticks,required,started_at_unix_ms) VALUES(?,?,?,?,?,?,?,?)`)
	// A run aborted before it started has no RUN_STARTED row yet.
	finishRun, _ := s.db.Prepare(`INSERT INTO runs(run_id,suite,name,rotation,max_ticks,required,started_at_unix_ms,status,code,reason,tick,world_digest,finished_at_unix_ms,duration_ms)
		VALUES(?,?,?,?,0,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(run_id) DO UPDATE SET status=excluded.status,code=excluded.code,reason=excluded.reason,tick=excluded.tick,
			world_digest=excluded.world_digest,finished_at_unix_ms=excluded.finished_at_unix_ms,duration_ms=excluded.duration_ms`)
	insertStep, _ := s.db.Prepare(`INSERT OR REPLACE INTO steps(run_id,seq,tick,kind,label,error) VALUES(?,?,?,?,?,?)`)
	insertBatch, _ := s.db.Prepare(`INSERT INTO batches(total,passed,failed,timed_out,required_failed,ok,recorded_at) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertRun, finishRun, insertStep, insertBatch} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrTotal.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.writeErrTotal.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqRunStarted:
			m := r.started
			exec(insertRun, m.RunID, m.Suite, m.Name, m.Rotation, m.Structure, m.MaxTicks, boolInt(m.Required), m.StartedAtUnixMS)

		case reqRunFinished:
			m := r.finished
			exec(finishRun, m.RunID, m.Suite, m.Name, m.Rotation, boolInt(m.Required), m.FinishedAtUnixMS-m.DurationMS,
				m.Status, m.Code, m.Reason, int64(m.Tick), m.WorldDigest, m.FinishedAtUnixMS, m.DurationMS)

		case reqStep:
			m := r.step
			exec(insertStep, m.RunID, int64(m.Seq), int64(m.Tick), m.Kind, m.Label, m.Error)

		case reqSummary:
			m := r.summary
			exec(insertBatch, m.Total, m.Passed, m.Failed, m.TimedOut, m.RequiredFailed, boolInt(m.OK), time.Now().UTC().Format(time.RFC3339Nano))
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
