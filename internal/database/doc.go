// Package database provides the PostgreSQL connection pool used by the
// optional message recorder.
package database
