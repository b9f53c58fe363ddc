// Package storage keeps the daemon's run history and audit journal.
//
// Two drivers exist: "file" appends JSON lines next to a path prefix,
// "sqlite" writes to a database file. Neither is needed for scheduling;
// the queue files are the daemon's source of truth.
package storage
