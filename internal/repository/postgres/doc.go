// Package postgres implements the service repository interfaces against
// PostgreSQL. All repositories take an injected *sql.DB and are safe for
// concurrent use.
package postgres
