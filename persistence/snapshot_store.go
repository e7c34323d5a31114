package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lexcodex/schemals/framework/ast"
	"github.com/lexcodex/schemals/framework/document"
)

// SnapshotStore persists index snapshots in a SQLite database.
type SnapshotStore struct {
	db *sql.DB
}

// DocumentRow is one exported document.
type DocumentRow struct {
	URI        string
	Language   string
	Version    int32
	Open       bool
	Generation uint64
	Hash       string
	Errors     int
	IndexedAt  time.Time
}

// SymbolRow is one exported declaration.
type SymbolRow struct {
	URI       string
	ID        int
	Name      string
	Kind      string
	Scope     int
	Range     ast.Range
	Detail    string
	Duplicate bool
}

// ReferenceRow is one exported reference. TargetURI is empty when the
// reference is unresolved.
type ReferenceRow struct {
	URI       string
	ID        int
	Name      string
	Accepts   string
	Range     ast.Range
	TargetURI string
	TargetID  int
}

// EdgeRow is one exported dependency edge.
type EdgeRow struct {
	From string
	To   string
	Kind string
}

// SaveSummary counts the rows written by Save.
type SaveSummary struct {
	Documents   int
	Symbols     int
	References  int
	Edges       int
	Diagnostics int
}

// NewSnapshotStore opens/creates the database at dbPath.
func NewSnapshotStore(dbPath string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	store := &SnapshotStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SnapshotStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		uri TEXT PRIMARY KEY,
		language TEXT,
		version INTEGER,
		open BOOLEAN,
		generation INTEGER,
		content_hash TEXT,
		errors INTEGER,
		indexed_at TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS symbols (
		uri TEXT NOT NULL,
		id INTEGER NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		scope INTEGER,
		start_line INTEGER,
		start_col INTEGER,
		end_line INTEGER,
		end_col INTEGER,
		detail TEXT,
		duplicate BOOLEAN,
		PRIMARY KEY(uri, id),
		FOREIGN KEY(uri) REFERENCES documents(uri) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS symbols_name ON symbols(name);
	CREATE TABLE IF NOT EXISTS refs (
		uri TEXT NOT NULL,
		id INTEGER NOT NULL,
		name TEXT NOT NULL,
		accepts TEXT,
		start_line INTEGER,
		start_col INTEGER,
		end_line INTEGER,
		end_col INTEGER,
		target_uri TEXT,
		target_id INTEGER,
		PRIMARY KEY(uri, id),
		FOREIGN KEY(uri) REFERENCES documents(uri) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS refs_target ON refs(target_uri, target_id);
	CREATE TABLE IF NOT EXISTS edges (
		from_uri TEXT NOT NULL,
		to_uri TEXT NOT NULL,
		kind TEXT NOT NULL,
		PRIMARY KEY(from_uri, to_uri, kind),
		FOREIGN KEY(from_uri) REFERENCES documents(uri) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS diagnostics (
		uri TEXT NOT NULL,
		severity TEXT,
		code TEXT,
		message TEXT,
		start_line INTEGER,
		start_col INTEGER,
		FOREIGN KEY(uri) REFERENCES documents(uri) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *SnapshotStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save replaces the stored snapshot with the scheduler's committed state.
func (s *SnapshotStore) Save(ctx context.Context, sched *document.Scheduler) (SaveSummary, error) {
	if sched == nil {
		return SaveSummary{}, errors.New("scheduler required")
	}
	var (
		summary SaveSummary
		err     error
	)
	sched.View(func(v document.View) {
		summary, err = s.save(ctx, v)
	})
	return summary, err
}

func (s *SnapshotStore) save(ctx context.Context, v document.View) (SaveSummary, error) {
	var summary SaveSummary
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return summary, err
	}
	if err := s.replace(ctx, tx, v, &summary); err != nil {
		tx.Rollback()
		return summary, err
	}
	return summary, tx.Commit()
}

func (s *SnapshotStore) replace(ctx context.Context, tx *sql.Tx, v document.View, summary *SaveSummary) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return err
	}
	docStmt, err := tx.PrepareContext(ctx, `INSERT INTO documents (
		uri, language, version, open, generation, content_hash, errors, indexed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer docStmt.Close()
	symStmt, err := tx.PrepareContext(ctx, `INSERT INTO symbols (
		uri, id, name, kind, scope, start_line, start_col, end_line, end_col, detail, duplicate
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer symStmt.Close()
	refStmt, err := tx.PrepareContext(ctx, `INSERT INTO refs (
		uri, id, name, accepts, start_line, start_col, end_line, end_col, target_uri, target_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer refStmt.Close()
	edgeStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO edges (from_uri, to_uri, kind) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer edgeStmt.Close()
	diagStmt, err := tx.PrepareContext(ctx, `INSERT INTO diagnostics (
		uri, severity, code, message, start_line, start_col
	) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer diagStmt.Close()

	idx := v.Index()
	now := time.Now().UTC()
	var saved []string
	for _, uri := range idx.Documents() {
		doc, ok := v.Document(uri)
		if !ok {
			continue
		}
		saved = append(saved, uri)
		if _, err := docStmt.ExecContext(ctx, doc.URI, doc.LanguageID, doc.Version, doc.Open,
			doc.Generation(), doc.Hash, doc.ErrorCount(), now); err != nil {
			return fmt.Errorf("save document %s: %w", uri, err)
		}
		summary.Documents++
		for _, sym := range doc.Table.Declarations() {
			r := sym.Range
			if _, err := symStmt.ExecContext(ctx, uri, int(sym.ID), sym.Name, sym.Kind.String(), int(sym.Scope),
				r.Start.Line, r.Start.Character, r.End.Line, r.End.Character, sym.Detail, sym.Duplicate); err != nil {
				return fmt.Errorf("save symbol %s: %w", sym, err)
			}
			summary.Symbols++
		}
		for _, ref := range doc.Table.References() {
			var targetURI, targetID interface{}
			if target, ok := idx.Target(uri, ref.ID); ok {
				targetURI, targetID = target.URI, int(target.ID)
			}
			r := ref.Range
			if _, err := refStmt.ExecContext(ctx, uri, int(ref.ID), ref.Name, ref.Accepts.String(),
				r.Start.Line, r.Start.Character, r.End.Line, r.End.Character, targetURI, targetID); err != nil {
				return fmt.Errorf("save reference %s: %w", ref, err)
			}
			summary.References++
		}
		for _, d := range doc.Diagnostics {
			if _, err := diagStmt.ExecContext(ctx, uri, d.Severity.String(), d.Code, d.Message,
				d.Range.Start.Line, d.Range.Start.Character); err != nil {
				return err
			}
			summary.Diagnostics++
		}
	}
	// Edges may point at documents that are not committed, so they are
	// written after every source row exists.
	for _, uri := range saved {
		for _, e := range idx.Dependencies(uri) {
			if _, err := edgeStmt.ExecContext(ctx, uri, e.To, e.Kind.String()); err != nil {
				return err
			}
			summary.Edges++
		}
	}
	return nil
}

// Documents lists the stored documents ordered by URI.
func (s *SnapshotStore) Documents(ctx context.Context) ([]DocumentRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uri, language, version, open, generation,
		content_hash, errors, indexed_at FROM documents ORDER BY uri`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DocumentRow
	for rows.Next() {
		var d DocumentRow
		if err := rows.Scan(&d.URI, &d.Language, &d.Version, &d.Open, &d.Generation,
			&d.Hash, &d.Errors, &d.IndexedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SymbolsNamed returns the stored declarations called name.
func (s *SnapshotStore) SymbolsNamed(ctx context.Context, name string) ([]SymbolRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uri, id, name, kind, scope, start_line, start_col,
		end_line, end_col, detail, duplicate FROM symbols WHERE name = ? ORDER BY uri, id`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SymbolRow
	for rows.Next() {
		var sym SymbolRow
		if err := rows.Scan(&sym.URI, &sym.ID, &sym.Name, &sym.Kind, &sym.Scope,
			&sym.Range.Start.Line, &sym.Range.Start.Character, &sym.Range.End.Line, &sym.Range.End.Character,
			&sym.Detail, &sym.Duplicate); err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// ReferencesTo returns the stored references resolved to a declaration.
func (s *SnapshotStore) ReferencesTo(ctx context.Context, uri string, id int) ([]ReferenceRow, error) {
	return s.queryRefs(ctx, `WHERE target_uri = ? AND target_id = ? ORDER BY uri, start_line, start_col`, uri, id)
}

// Unresolved returns the stored references without a target.
func (s *SnapshotStore) Unresolved(ctx context.Context) ([]ReferenceRow, error) {
	return s.queryRefs(ctx, `WHERE target_uri IS NULL ORDER BY uri, start_line, start_col`)
}

func (s *SnapshotStore) queryRefs(ctx context.Context, where string, args ...interface{}) ([]ReferenceRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uri, id, name, accepts, start_line, start_col,
		end_line, end_col, target_uri, target_id FROM refs `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReferenceRow
	for rows.Next() {
		var (
			ref       ReferenceRow
			targetURI sql.NullString
			targetID  sql.NullInt64
		)
		if err := rows.Scan(&ref.URI, &ref.ID, &ref.Name, &ref.Accepts,
			&ref.Range.Start.Line, &ref.Range.Start.Character, &ref.Range.End.Line, &ref.Range.End.Character,
			&targetURI, &targetID); err != nil {
			return nil, err
		}
		ref.TargetURI = targetURI.String
		ref.TargetID = int(targetID.Int64)
		out = append(out, ref)
	}
	return out, rows.Err()
}

// Edges returns the stored dependency edges ordered by source.
func (s *SnapshotStore) Edges(ctx context.Context) ([]EdgeRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT from_uri, to_uri, kind FROM edges ORDER BY from_uri, to_uri, kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EdgeRow
	for rows.Next() {
		var e EdgeRow
		if err := rows.Scan(&e.From, &e.To, &e.Kind); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Summarize counts the rows of each table.
func (s *SnapshotStore) Summarize(ctx context.Context) (SaveSummary, error) {
	var summary SaveSummary
	counts := []struct {
		table string
		dest  *int
	}{
		{"documents", &summary.Documents},
		{"symbols", &summary.Symbols},
		{"refs", &summary.References},
		{"edges", &summary.Edges},
		{"diagnostics", &summary.Diagnostics},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil {
			return summary, err
		}
	}
	return summary, nil
}
