/*Package csql wraps a postgres database together with the schema the service works in
 */
package csql

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/relabs-tech/sastoken/core/logger"

	_ "github.com/lib/pq" // load database driver for postgres
)

// DB is a postgres database whose tables live in Schema
type DB struct {
	*sql.DB
	Schema string
}

// ErrNoRows is returned by Scan when QueryRow doesn't return a row
var ErrNoRows = sql.ErrNoRows

// schema names are spliced into statements, so they are restricted to plain identifiers
var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Open connects to postgres and creates schema if it does not exist. An empty
// schema selects "public".
func Open(ctx context.Context, dataSourceName, schema string) (*DB, error) {
	if schema == "" {
		schema = "public"
	}
	if !identifier.MatchString(schema) {
		return nil, fmt.Errorf("invalid schema name %q", schema)
	}
	rlog := logger.FromContext(ctx)
	rlog.WithField("schema", schema).Infoln("connecting to postgres database")

	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS `+schema+`;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema %s: %w", schema, err)
	}
	return &DB{DB: db, Schema: schema}, nil
}

// Table returns the schema qualified name of table
func (db *DB) Table(table string) string {
	return db.Schema + "." + table
}

// ClearSchema drops the schema with all its tables and creates it again empty.
// The public schema is never dropped.
func (db *DB) ClearSchema(ctx context.Context) error {
	if db.Schema == "public" {
		return fmt.Errorf("refuse to drop the public schema")
	}
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS `+db.Schema+` CASCADE;
CREATE SCHEMA `+db.Schema+`;`)
	if err != nil {
		return fmt.Errorf("clear schema %s: %w", db.Schema, err)
	}
	return nil
}
