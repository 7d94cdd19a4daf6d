package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"timbercraft.ai/internal/sim/catalogs"
	"timbercraft.ai/internal/sim/tuning"
	"timbercraft.ai/internal/sim/world/audit"
	"timbercraft.ai/internal/sim/world/logic/treescan"
)

var ErrClosed = errors.New("indexdb: closed")

// SQLiteIndex is the block history store. Writes go through a single goroutine that batches them
// into transactions; reads use a separate read-only handle so they never wait on an open batch.
type SQLiteIndex struct {
	db *sql.DB
	ro *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once
	mu   sync.RWMutex // guards sends on ch against Close

	closed atomic.Bool

	dropAudit atomic.Uint64
}

type reqKind int

const (
	reqAudit reqKind = iota + 1
	reqFlush
)

type req struct {
	kind  reqKind
	audit audit.Entry
	done  chan struct{}
}

// Row is one stored audit with its insertion sequence.
type Row struct {
	Seq int64
	audit.Entry
}

type Stats struct {
	DropAuditTotal uint64
	QueueDepth     int
	QueueCapacity  int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := openHandle(path)
	if err != nil {
		return nil, err
	}
	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	ro, err := openHandle(path)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := ro.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = ro.Close()
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ro: ro,
		// High buffer: a felled tree emits hundreds of BREAK rows at once.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func openHandle(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
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
		`CREATE TABLE IF NOT EXISTS audits (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at_ms INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			block TEXT NOT NULL,
			reason TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_pos_time ON audits(x, z, y, at_ms);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor_time ON audits(actor, at_ms);`,
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
		s.mu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = errors.Join(s.db.Close(), s.ro.Close())
	})
	return err
}

// WriteAudit enqueues without blocking. Entries are dropped, and counted, when the queue is full.
func (s *SQLiteIndex) WriteAudit(entry audit.Entry) error {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return ErrClosed
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		s.dropAudit.Add(1)
	}
	return nil
}

// Flush blocks until every entry queued before the call is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed.Load() {
		s.mu.RUnlock()
		return ErrClosed
	}
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		DropAuditTotal: s.dropAudit.Load(),
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
	}
}

func (s *SQLiteIndex) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b, _ := json.Marshal(cats.Blocks.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "blocks_palette", digest: cats.Blocks.PaletteDigest, json: b})
	}
	if b, _ := json.Marshal(cats.Items.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "items_palette", digest: cats.Items.PaletteDigest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.digest == "" || len(r.json) == 0 {
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

	insertAudit, _ := s.db.Prepare(`INSERT INTO audits(at_ms,actor,action,x,y,z,block,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertAudit != nil {
			_ = insertAudit.Close()
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
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	ticker := time.NewTicker(commitMaxWait / 2)
	defer ticker.Stop()

	for {
		var r req
		select {
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		case <-ticker.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
			continue
		}

		switch r.kind {
		case reqFlush:
			commit()
			close(r.done)
			continue
		case reqAudit:
			begin()
			if tx == nil || insertAudit == nil {
				continue
			}
			a := r.audit
			raw, _ := json.Marshal(a)
			if _, err := tx.Stmt(insertAudit).Exec(
				a.AtMs,
				a.Actor,
				a.Action,
				a.Pos[0], a.Pos[1], a.Pos[2],
				a.Block,
				a.Reason,
				string(raw),
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
}

// WasPlayerPlaced reports whether a player (not a '#' source) placed a block at c within lookback.
// A lookback <= 0 searches the whole history. Queued writes are committed first.
func (s *SQLiteIndex) WasPlayerPlaced(ctx context.Context, c treescan.Coord, lookback time.Duration) (bool, error) {
	if err := s.Flush(ctx); err != nil {
		return false, err
	}
	since := int64(0)
	if lookback > 0 {
		since = time.Now().Add(-lookback).UnixMilli()
	}
	var one int
	err := s.ro.QueryRowContext(ctx,
		`SELECT 1 FROM audits
		WHERE x=? AND z=? AND y=? AND at_ms>=? AND action=? AND actor<>'' AND substr(actor,1,1)<>'#'
		LIMIT 1`,
		c.X, c.Z, c.Y, since, audit.ActionPlace,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("indexdb: placed lookup %v: %w", c, err)
	}
	return true, nil
}

// Lookup returns the newest history at c, most recent first.
func (s *SQLiteIndex) Lookup(ctx context.Context, c treescan.Coord, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.ro.QueryContext(ctx,
		`SELECT seq,at_ms,actor,action,x,y,z,block,COALESCE(reason,'') FROM audits
		WHERE x=? AND z=? AND y=? ORDER BY at_ms DESC, seq DESC LIMIT ?`,
		c.X, c.Z, c.Y, limit)
	if err != nil {
		return nil, fmt.Errorf("indexdb: lookup %v: %w", c, err)
	}
	return scanRows(rows)
}

// Recent returns the newest audits across the grid.
func (s *SQLiteIndex) Recent(ctx context.Context, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.ro.QueryContext(ctx,
		`SELECT seq,at_ms,actor,action,x,y,z,block,COALESCE(reason,'') FROM audits
		ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("indexdb: recent: %w", err)
	}
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Seq, &r.AtMs, &r.Actor, &r.Action, &r.Pos[0], &r.Pos[1], &r.Pos[2], &r.Block, &r.Reason); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
