// Package descriptor discovers the backend port from session descriptor files.
//
// A backend writes {"port": N} into a per-session file whose path is derived
// from a session identifier persisted in the workspace state. A legacy
// workspace-relative file is read as well, until the per-session file shows up
// for the first time. The Resolver funnels a periodic poll, an early first
// poll and filesystem notifications into one read path and emits each
// distinct port once.
package descriptor
