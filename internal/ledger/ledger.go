// Package ledger is the write-once record of every applied modification and
// every cycle result. Records live in three places at once: an in-memory
// slice for fast introspection, a SQLite store for durable queries, and a
// per-modification unified-diff artifact for human inspection.
package ledger

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"metamorph/internal/diff"
	"metamorph/internal/logging"
	"metamorph/internal/types"
)

// Ledger owns historical modification records. Records are append-only and
// never edited.
type Ledger struct {
	mu      sync.RWMutex
	db      *sql.DB
	workDir string
	records []types.ModificationRecord
	engine  *diff.Engine
}

// NewLedger opens (or creates) the ledger at the given SQLite path, with diff
// and cycle artifacts written under workDir. Previously persisted records are
// loaded so introspection spans restarts.
func NewLedger(dbPath, workDir string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	for _, sub := range []string{"mods", "cycles"} {
		if err := os.MkdirAll(filepath.Join(workDir, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	l := &Ledger{db: db, workDir: workDir, engine: diff.NewEngine()}
	if err := l.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := l.loadRecords(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// initialize creates the required tables.
func (l *Ledger) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS modifications (
		id TEXT PRIMARY KEY,
		cycle_id INTEGER NOT NULL,
		component TEXT NOT NULL,
		description TEXT,
		size_delta INTEGER,
		hash_before TEXT NOT NULL,
		hash_after TEXT NOT NULL,
		tests_passed INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_mod_cycle ON modifications(cycle_id);
	CREATE INDEX IF NOT EXISTS idx_mod_component ON modifications(component);

	CREATE TABLE IF NOT EXISTS cycle_results (
		cycle_id INTEGER PRIMARY KEY,
		result TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return nil
}

// loadRecords restores the in-memory view from the store.
func (l *Ledger) loadRecords() error {
	rows, err := l.db.Query(`
		SELECT id, cycle_id, component, description, size_delta,
		       hash_before, hash_after, tests_passed, created_at
		FROM modifications ORDER BY created_at ASC`)
	if err != nil {
		return fmt.Errorf("failed to load modification records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r types.ModificationRecord
		var passed int
		if err := rows.Scan(&r.ID, &r.CycleID, &r.Component, &r.Description,
			&r.SizeDelta, &r.HashBefore, &r.HashAfter, &passed, &r.Timestamp); err != nil {
			return fmt.Errorf("failed to scan modification record: %w", err)
		}
		r.TestsPassed = passed == 1
		l.records = append(l.records, r)
	}
	return rows.Err()
}

// LogModification records one applied modification: content hashes, size
// delta, unique id, durable row, and a unified-diff artifact. It never
// rejects input; storage failures are logged and the in-memory record kept.
func (l *Ledger) LogModification(component, description, before, after string, cycleID int, testsPassed bool) types.ModificationRecord {
	record := types.ModificationRecord{
		ID:          uuid.NewString(),
		CycleID:     cycleID,
		Component:   component,
		Description: description,
		SizeDelta:   len(after) - len(before),
		HashBefore:  ContentHash(before),
		HashAfter:   ContentHash(after),
		TestsPassed: testsPassed,
		Timestamp:   time.Now().UTC(),
	}

	l.mu.Lock()
	l.records = append(l.records, record)
	l.mu.Unlock()

	passed := 0
	if testsPassed {
		passed = 1
	}
	if _, err := l.db.Exec(`
		INSERT INTO modifications
		(id, cycle_id, component, description, size_delta, hash_before, hash_after, tests_passed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.CycleID, record.Component, record.Description,
		record.SizeDelta, record.HashBefore, record.HashAfter, passed, record.Timestamp,
	); err != nil {
		logging.Get(logging.CategoryLedger).Error("failed to persist modification %s: %v", record.ID, err)
	}

	l.writeDiffArtifact(record, before, after)

	logging.Ledger("modification %s: %s on %s (delta %+d, tests=%v)",
		record.ID[:8], description, component, record.SizeDelta, testsPassed)
	logging.Audit().Log(logging.AuditEvent{
		EventType: logging.AuditModification,
		Category:  string(logging.CategoryLedger),
		CycleID:   cycleID,
		Target:    component,
		Success:   testsPassed,
		Message:   description,
	})
	return record
}

// writeDiffArtifact persists the unified diff with a hash header.
func (l *Ledger) writeDiffArtifact(record types.ModificationRecord, before, after string) {
	d := l.engine.Compute(
		fmt.Sprintf("%s@%s", record.Component, record.HashBefore[:12]),
		fmt.Sprintf("%s@%s", record.Component, record.HashAfter[:12]),
		before, after,
	)

	var header string
	header += fmt.Sprintf("# modification %s\n", record.ID)
	header += fmt.Sprintf("# cycle %d  component %s\n", record.CycleID, record.Component)
	header += fmt.Sprintf("# hash_before %s\n# hash_after  %s\n", record.HashBefore, record.HashAfter)

	path := filepath.Join(l.workDir, "mods", fmt.Sprintf("cycle_%d_%s.diff", record.CycleID, record.ID[:8]))
	if err := os.WriteFile(path, []byte(header+d.Unified()), 0644); err != nil {
		logging.Get(logging.CategoryLedger).Error("failed to write diff artifact: %v", err)
	}
}

// SaveCycleResult persists one cycle's result record, both as a
// human-inspectable JSON file and a queryable row.
func (l *Ledger) SaveCycleResult(result types.CycleResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cycle result: %w", err)
	}

	path := filepath.Join(l.workDir, "cycles", fmt.Sprintf("cycle_%06d.json", result.CycleID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cycle result: %w", err)
	}

	if _, err := l.db.Exec(`
		INSERT OR REPLACE INTO cycle_results (cycle_id, result, created_at)
		VALUES (?, ?, ?)`,
		result.CycleID, string(data), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to persist cycle result: %w", err)
	}
	return nil
}

// CycleResults returns all persisted cycle results ordered by cycle id.
func (l *Ledger) CycleResults() ([]types.CycleResult, error) {
	rows, err := l.db.Query(`SELECT result FROM cycle_results ORDER BY cycle_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle results: %w", err)
	}
	defer rows.Close()

	var results []types.CycleResult
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var r types.CycleResult
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("failed to decode cycle result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Records returns a copy of the modification records.
func (l *Ledger) Records() []types.ModificationRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]types.ModificationRecord(nil), l.records...)
}

// Close releases the store.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// ContentHash returns the hex SHA-256 of a source version.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
