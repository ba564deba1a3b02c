/*
Package session persists retained annotations for bridge sessions.

The Manager serializes read-modify-write cycles per session key, so toggling a
favorite in one surface while a note is saved from another never loses an
update. When several bridge replicas share a Redis store, an optional
distributed locker extends the same guarantee across processes.
*/
package session
