package services

import "context"

// PositionDB is the reference game database consulted for novelty
// annotation. The database itself lives outside this core; the pipeline only
// asks membership questions.
type PositionDB interface {
	IsPositionInDB(ctx context.Context, fen string, exact bool) (bool, error)
}

// PositionDBOpener resolves a reference database path into a queryable
// handle. A nil opener makes any novelty-annotated analysis fail with
// ErrMissingReferenceDatabase; cmd/server passes nil.
type PositionDBOpener func(path string) (PositionDB, error)
