package scheduler

import "errors"

var (
	ErrPermission = errors.New("scheduler: permission denied")
	ErrNoSchedule = errors.New("scheduler: task has no start")
	ErrNotFound   = errors.New("scheduler: no such task")
	ErrBadTask    = errors.New("scheduler: invalid task")
)
