// Package storage opens the Postgres handle shared by the durable stores and applies
// the embedded schema migrations.
//
// Stores depend on the small DBTX interface rather than on *sql.DB so that they can
// run inside a transaction opened by WithTx.
package storage
