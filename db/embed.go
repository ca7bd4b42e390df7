// Package db carries the goose migrations for the Postgres message store.
package db

import "embed"

// Migrations holds the SQL files under migration/.
//
//go:embed migration/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations.
const MigrationsDir = "migration"
