package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	libdb "easypark/backend/libs/db"
)

//go:embed schema.sql
var schemaSQL string

// NewPostgres returns shared DB connection.
func NewPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	return libdb.Open(ctx, dsn, libdb.PoolOptions{})
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
