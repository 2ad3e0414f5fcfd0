package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type MySQLAdapter struct {
	db *sqlx.DB
}

func NewMySQLAdapter(db *sqlx.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate brings the kv_entries schema up to date.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("mysql"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := m.db.GetContext(ctx, &value, `SELECT entry_value FROM kv_entries WHERE entry_key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query %s: %w", key, err)
	}

	return value, true, nil
}

func (m *MySQLAdapter) Set(ctx context.Context, key string, value []byte) error {
	if _, err := m.db.ExecContext(ctx, upsertEntry, key, value); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

const upsertEntry = `
	INSERT INTO kv_entries (entry_key, entry_value) VALUES (?, ?)
	ON DUPLICATE KEY UPDATE entry_value = VALUES(entry_value)`

func (m *MySQLAdapter) SetMulti(ctx context.Context, entries map[string][]byte) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for key, value := range entries {
		if _, err := tx.ExecContext(ctx, upsertEntry, key, value); err != nil {
			return fmt.Errorf("upsert %s: %w", key, err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE entry_key LIKE ?`, likeEscaper.Replace(prefix)+"%")
	if err != nil {
		return fmt.Errorf("delete %s*: %w", prefix, err)
	}
	return nil
}
