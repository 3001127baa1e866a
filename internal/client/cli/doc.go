// Package cli provides the interactive PinVault command-line client.
//
// It wires configuration, the local cache, the client services and a REPL.
// Typical flow: log in (or register), then list, add, show and remove vault
// items; passwd rotates the master password and recover walks the OTP and
// PIN recovery. A background watcher pings the server and flips the prompt
// between online and offline.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
