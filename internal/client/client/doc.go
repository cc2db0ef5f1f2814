// Package client bootstraps the storage of one GophChat client instance.
//
// # Overview
//
// Open wires everything an instance needs below the service layer:
//  1. The shared durable database file (modernc.org/sqlite in WAL mode with a
//     busy timeout, so several processes can open it at once), migrated with
//     the embedded goose migrations.
//  2. A private in-memory session database holding the logged-in account.
//  3. A random origin id (UUID) under which this instance's writes are
//     recorded, plus a records.Watcher that reports everybody else's writes.
//
// Close releases both databases.
//
// # Error Handling
//
// Bootstrap failures are wrapped with the step that failed; an empty
// database path is reported as ErrEmptyDatabasePath.
package client
