// Package cli provides the interactive LinkSphere command-line client.
//
// It wires configuration, the HTTP API client and an interactive REPL.
// A background watcher pings the server and shows whether it is reachable.
//
// Key features:
//   - register, verify and resend the emailed code
//   - login / logout, refresh the session
//   - me: show the current account
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
