// Package supervisor launches the sync daemon, keeps it running, and stops
// it.
//
// The pid of the most recently launched process is recorded in a pidfile so
// that a later invocation of the CLI can stop a daemon it didn't start.
package supervisor
