// Package cli provides the interactive GophChat command-line client.
//
// It wires configuration, the shared store, the services and an interactive
// REPL. While the REPL runs, a background watcher applies other instances'
// writes and the open thread is re-printed when it goes stale.
//
// Key features:
//   - Register / Login / Logout / password recovery
//   - Conversation list with filters and search, threads, sending
//   - Groups, presence, profile rename and password change
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
