package trace

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/legsim/timing/pipeline"
)

// ErrDatabaseExists is returned when the trace database file is already
// present.
var ErrDatabaseExists = errors.New("trace database already exists")

// StageRow is one stage of one cycle as stored in the stage_trace table.
type StageRow struct {
	Cycle   uint64
	Stage   string
	Valid   bool
	PC      uint64
	Op      string
	Word    uint32
	ValEx   uint64
	ValMem  uint64
	Stall   bool
	Bubble  bool
	Hazard  string
	Retired bool
}

// SQLiteTracer records every stage of every cycle into an SQLite
// database. Rows are buffered and written in batches.
type SQLiteTracer struct {
	*sql.DB
	statement *sql.Stmt

	dbName    string
	runID     string
	rows      []StageRow
	batchSize int
}

// NewSQLiteTracer creates the database <path>.sqlite3 and its tables. An
// empty path picks a unique name. Buffered rows are flushed at exit.
func NewSQLiteTracer(path string) (*SQLiteTracer, error) {
	t := &SQLiteTracer{
		dbName:    path,
		runID:     xid.New().String(),
		batchSize: 10000,
	}

	if err := t.init(); err != nil {
		return nil, err
	}

	atexit.Register(func() {
		if err := t.Flush(); err != nil {
			log.Printf("trace: %v", err)
		}
	})

	return t, nil
}

// RunID identifies this run in the database.
func (t *SQLiteTracer) RunID() string {
	return t.runID
}

// FileName returns the database file name.
func (t *SQLiteTracer) FileName() string {
	return t.dbName + ".sqlite3"
}

func (t *SQLiteTracer) init() error {
	if t.dbName == "" {
		t.dbName = "legsim_trace_" + t.runID
	}

	filename := t.FileName()
	if _, err := os.Stat(filename); err == nil {
		return fmt.Errorf("%w: %s", ErrDatabaseExists, filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return fmt.Errorf("failed to open trace database: %w", err)
	}
	t.DB = db

	if err := t.createTables(); err != nil {
		return err
	}

	stmt, err := t.Prepare(`INSERT INTO stage_trace VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare trace statement: %w", err)
	}
	t.statement = stmt

	return nil
}

func (t *SQLiteTracer) createTables() error {
	stmts := []string{
		`CREATE TABLE run
		(
			run_id  VARCHAR(40) NOT NULL PRIMARY KEY,
			cycles  INTEGER DEFAULT 0,
			retired INTEGER DEFAULT 0,
			outcome VARCHAR(20) DEFAULT ''
		);`,
		`CREATE TABLE stage_trace
		(
			run_id  VARCHAR(40) NOT NULL,
			cycle   INTEGER NOT NULL,
			stage   VARCHAR(1) NOT NULL,
			valid   BOOLEAN,
			pc      INTEGER,
			op      VARCHAR(10),
			word    INTEGER,
			val_ex  INTEGER,
			val_mem INTEGER,
			stall   BOOLEAN,
			bubble  BOOLEAN,
			hazard  VARCHAR(20),
			retired BOOLEAN
		);`,
		`CREATE INDEX stage_trace_cycle_index ON stage_trace (cycle);`,
		`CREATE INDEX stage_trace_pc_index ON stage_trace (pc);`,
	}

	for _, s := range stmts {
		if _, err := t.Exec(s); err != nil {
			return fmt.Errorf("failed to create trace tables: %w", err)
		}
	}

	if _, err := t.Exec(`INSERT INTO run (run_id) VALUES (?)`, t.runID); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	return nil
}

// TraceCycle buffers one row per stage.
func (t *SQLiteTracer) TraceCycle(rec pipeline.CycleRecord) {
	for s := pipeline.StageF; s < pipeline.NumStages; s++ {
		l := rec.Latches[s]
		insn := l.Out

		t.rows = append(t.rows, StageRow{
			Cycle:   rec.Cycle,
			Stage:   s.String(),
			Valid:   insn.Valid,
			PC:      insn.PC,
			Op:      insn.Op.String(),
			Word:    insn.Word,
			ValEx:   insn.ValEx,
			ValMem:  insn.ValMem,
			Stall:   l.Stall,
			Bubble:  l.Bubble,
			Hazard:  rec.Hazard.String(),
			Retired: s == pipeline.StageW && rec.Retired.Valid,
		})
	}

	if len(t.rows) >= t.batchSize {
		if err := t.Flush(); err != nil {
			log.Printf("trace: %v", err)
		}
	}
}

// Flush writes all the buffered rows to the database.
func (t *SQLiteTracer) Flush() error {
	if len(t.rows) == 0 {
		return nil
	}

	tx, err := t.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin trace transaction: %w", err)
	}

	stmt := tx.Stmt(t.statement)
	for _, r := range t.rows {
		_, err := stmt.Exec(t.runID, int64(r.Cycle), r.Stage, r.Valid, int64(r.PC), r.Op,
			r.Word, int64(r.ValEx), int64(r.ValMem), r.Stall, r.Bubble, r.Hazard, r.Retired)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert trace row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trace rows: %w", err)
	}

	t.rows = nil

	return nil
}

// Finish records the final statistics of the run and flushes.
func (t *SQLiteTracer) Finish(outcome pipeline.Outcome, stats pipeline.Statistics) error {
	if err := t.Flush(); err != nil {
		return err
	}

	_, err := t.Exec(`UPDATE run SET cycles = ?, retired = ?, outcome = ? WHERE run_id = ?`,
		int64(stats.Cycles), int64(stats.Instructions), outcome.String(), t.runID)
	if err != nil {
		return fmt.Errorf("failed to record run summary: %w", err)
	}

	return nil
}

// Close flushes and closes the database.
func (t *SQLiteTracer) Close() error {
	if err := t.Flush(); err != nil {
		return err
	}
	return t.DB.Close()
}
