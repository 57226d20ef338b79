package storage

import "errors"

var (
	ErrQdrantUnreachable = errors.New("qdrant server unreachable")
	ErrCollectionClosed  = errors.New("collection already dropped")
)
