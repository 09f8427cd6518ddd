// Package recordsource defines the pull-style record iterator the
// collector daemon drives, plus its concrete backends (jsonl, kafka).
package recordsource

import (
	"context"
	"errors"

	"github.com/route-beacon/bgpview/internal/routingtables"
)

// ErrEOF is returned by Source.Next when the source is exhausted (a
// replay file reaching its end, or a bounded test fixture). Live sources
// such as Kafka never return it; Next simply blocks until ctx is done.
var ErrEOF = errors.New("recordsource: end of source")

// Source is the pull-style iterator the engine is agnostic to: each call
// returns one Record or (zero, ErrEOF) or (zero, some other error).
type Source interface {
	// Next blocks until a record is available, ctx is canceled, or the
	// source is exhausted.
	Next(ctx context.Context) (routingtables.Record, error)

	// Close releases any underlying resources (file handles, client
	// connections).
	Close() error
}
