package db

import "embed"

// sqlSchemas holds the migration files for every supported backend, one
// directory per dialect.
//
//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var sqlSchemas embed.FS

const (
	// sqliteMigrationsPath is the sqlite migration directory in sqlSchemas.
	sqliteMigrationsPath = "migrations/sqlite"

	// postgresMigrationsPath is the postgres migration directory in
	// sqlSchemas.
	postgresMigrationsPath = "migrations/postgres"
)
