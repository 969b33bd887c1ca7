package store

import "errors"

var errAlreadyRunning = errors.New(
	"is Tempora already running? Only one instance can be active at a time",
)
