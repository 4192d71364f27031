package storage

import "time"

// Observer receives one call per store operation. metrics.CollectionObserver
// implements it.
type Observer interface {
	Observe(op string, bytes int64, err error, dur time.Duration)
}

type nopObserver struct{}

func (nopObserver) Observe(string, int64, error, time.Duration) {}

// NopObserver discards observations.
var NopObserver Observer = nopObserver{}

// Operation names reported to an Observer.
const (
	OpCreateContainer = "create_container"
	OpDeleteContainer = "delete_container"
	OpPut             = "put"
	OpGet             = "get"
	OpHead            = "head"
	OpDelete          = "delete"
	OpList            = "list"
	OpArchive         = "archive"
)
