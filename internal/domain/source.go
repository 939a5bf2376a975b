package domain

import "context"

// PoolSource is the single capability every upstream pool-data provider
// implements. Fetch returns normalized pool records for the configured token
// universe; partial success is still success. Implementations never mutate
// shared state, they only return snapshots for the registry merge step.
type PoolSource interface {
	Name() string
	Fetch(ctx context.Context, universe []Token) ([]Pool, error)
}
