package tokenstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/lib/pq"

	"github.com/unitlink/unitlink/internal/models"
)

const credentialsTable = `
        CREATE TABLE IF NOT EXISTS credentials (
            key   TEXT PRIMARY KEY,
            value TEXT NOT NULL
        )`

// SQLStore persists the credential in a credentials(key, value) table
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLStore opens a SQL backed store. driver is "sqlite" or "postgres".
func NewSQLStore(driver, dsn string) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if driver == "sqlite" {
		// a single connection keeps :memory: databases shared
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(credentialsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create credentials table: %w", err)
	}

	return &SQLStore{db: db, driver: driver}, nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Save implements Store
func (s *SQLStore) Save(ctx context.Context, cred models.Credential) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}

	query := s.rebind(`INSERT INTO credentials (key, value) VALUES (?, ?)`)
	fields := cred.Fields()
	for _, name := range models.CredentialFields {
		if _, err := tx.ExecContext(ctx, query, name, fields[name]); err != nil {
			return fmt.Errorf("insert %s: %w", name, err)
		}
	}

	return tx.Commit()
}

// Load implements Store
func (s *SQLStore) Load(ctx context.Context) (*models.Credential, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM credentials`)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	fields := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		fields[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return fromFields(fields), nil
}

// Clear implements Store
func (s *SQLStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

// UpdateField implements Store
func (s *SQLStore) UpdateField(ctx context.Context, name, value string) error {
	if err := checkField(name); err != nil {
		return err
	}

	query := s.rebind(`
        INSERT INTO credentials (key, value) VALUES (?, ?)
        ON CONFLICT (key) DO UPDATE SET value = excluded.value`)

	if _, err := s.db.ExecContext(ctx, query, name, value); err != nil {
		return fmt.Errorf("update %s: %w", name, err)
	}
	return nil
}

// rebind converts ? placeholders to $n for postgres
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
