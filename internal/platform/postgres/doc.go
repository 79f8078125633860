// Package postgres implements the job archive on PostgreSQL through
// database/sql and the pgx stdlib driver. The schema is managed with goose;
// migrations are embedded in the binary.
package postgres
