package postgres

import _ "embed"

// Schema is the full DDL for the journal tables. Statements are idempotent;
// applying it to an already-migrated database is a no-op.
//
//go:embed schema.sql
var Schema string
