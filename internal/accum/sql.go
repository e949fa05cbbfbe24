package accum

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"dwcavalidate/internal/validate"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLConfig selects a driver and DSN for a SQLAccumulator. Driver must be
// one of "mysql", "postgres", or "sqlite".
type SQLConfig struct {
	Driver string
	DSN    string
	Table  string // defaults to "findings"
}

// SQLAccumulator writes every finding as a row via database/sql, selecting
// among the three drivers the wider stack already carries for its own
// connectors rather than adding a fourth.
type SQLAccumulator struct {
	db         *sql.DB
	driverName string
	table      string

	mu     sync.Mutex
	closed bool
}

// NewSQLAccumulator opens a connection and ensures the findings table
// exists, using the driver's own DDL dialect.
func NewSQLAccumulator(cfg SQLConfig) (*SQLAccumulator, error) {
	driverName, err := resolveDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	table := cfg.Table
	if table == "" {
		table = "findings"
	}

	a := &SQLAccumulator{db: db, driverName: driverName, table: table}
	if err := a.ensureTable(driverName); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func resolveDriver(name string) (string, error) {
	switch name {
	case "mysql", "postgres", "sqlite":
		return name, nil
	default:
		return "", fmt.Errorf("unsupported sql driver: %s", name)
	}
}

func (a *SQLAccumulator) ensureTable(driverName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	idType := "SERIAL PRIMARY KEY"
	if driverName == "mysql" {
		idType = "INT AUTO_INCREMENT PRIMARY KEY"
	} else if driverName == "sqlite" {
		idType = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id %s,
		kind VARCHAR(64) NOT NULL,
		severity VARCHAR(16) NOT NULL,
		evaluator_key VARCHAR(128) NOT NULL,
		context VARCHAR(16) NOT NULL,
		row_type VARCHAR(255),
		value TEXT,
		message TEXT
	)`, a.table, idType)

	_, err := a.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("ensure findings table: %w", err)
	}
	return nil
}

// placeholders builds a driver-appropriate bind-parameter list: MySQL and
// SQLite take positional "?", Postgres takes numbered "$1".."$n".
func placeholders(driverName string, n int) string {
	if driverName != "postgres" {
		s := ""
		for i := 0; i < n; i++ {
			if i > 0 {
				s += ", "
			}
			s += "?"
		}
		return s
	}
	s := ""
	for i := 1; i <= n; i++ {
		if i > 1 {
			s += ", "
		}
		s += fmt.Sprintf("$%d", i)
	}
	return s
}

func (a *SQLAccumulator) Accept(finding validate.Finding) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := fmt.Sprintf(
		`INSERT INTO %s (kind, severity, evaluator_key, context, row_type, value, message) VALUES (%s)`,
		a.table, placeholders(a.driverName, 7),
	)
	_, err := a.db.ExecContext(ctx, query,
		string(finding.Kind), string(finding.Severity), finding.EvaluatorKey,
		string(finding.Context), string(finding.RowType), finding.Value, finding.Message,
	)
	if err != nil {
		log.Printf("[accum] sql insert failed: %v", err)
	}
}

// Close closes the underlying connection pool. Idempotent.
func (a *SQLAccumulator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}
