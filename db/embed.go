// Package db provides the embedded database schema and seed fixtures.
package db

import _ "embed"

// Schema contains the idempotent DDL for clients, catalog, prices, orders
// and API keys.
//
//go:embed migrations/001_schema.sql
var Schema string
