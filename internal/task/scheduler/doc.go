// Package scheduler is the daemon core: it owns the task registry, keeps
// every task's next occurrence armed, fires due occurrences through the
// task engine and reaps children.
//
// A Core is not safe for concurrent use. The daemon loop is its only
// caller; handlers run to completion one at a time.
package scheduler
