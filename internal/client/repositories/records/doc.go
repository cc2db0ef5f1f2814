// Package records provides the durable store shared by every running client
// instance on the device.
//
// # Overview
//
// Values are JSON documents addressed by a string key (for example
// "userData" or "chat_messages") and kept in a single SQLite file. Each write
// also appends a row to a change log tagged with the writer's origin, a UUID
// that identifies the instance.
//
// # Change notification
//
// A Watcher polls the change log and hands back the changes written by other
// origins since its last poll. Writes made through the watcher's own origin
// are skipped, so an instance is never notified about itself.
//
// # Atomicity
//
// Set and Delete are atomic per key. Batch runs several writes in one
// transaction, so readers observe either all of them or none.
//
// Key Types
//
//   - type Repository : interface used by the services
//   - type SQLiteRepository : SQLite implementation
//   - type Watcher : change-log poller
//
// Typical Usage
//
//	repo := records.NewSQLiteRepository(db, origin)
//	_ = repo.Set(ctx, "chat_groups", raw)
//	w := records.NewWatcher(db, origin, time.Second, logger)
//	_ = w.Run(ctx, func(ctx context.Context, changes []records.Change) { ... })
package records
