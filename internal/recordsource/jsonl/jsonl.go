// Package jsonl implements a recordsource.Source over a newline-delimited
// JSON file or stream, for tests and offline replay. Each line is one
// routingtables.Record in the JSON shape its fields declare.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/route-beacon/bgpview/internal/recordsource"
	"github.com/route-beacon/bgpview/internal/routingtables"
)

type Source struct {
	closer io.Closer
	sc     *bufio.Scanner
	line   int
}

// Open reads records from r. If r also implements io.Closer, Close
// releases it; otherwise Close is a no-op.
func Open(r io.Reader) *Source {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	s := &Source{sc: sc}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Next decodes and returns the next non-empty line as a Record.
func (s *Source) Next(ctx context.Context) (routingtables.Record, error) {
	for {
		select {
		case <-ctx.Done():
			return routingtables.Record{}, ctx.Err()
		default:
		}

		if !s.sc.Scan() {
			if err := s.sc.Err(); err != nil {
				return routingtables.Record{}, fmt.Errorf("jsonl: read line %d: %w", s.line, err)
			}
			return routingtables.Record{}, recordsource.ErrEOF
		}
		s.line++
		line := s.sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec routingtables.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return routingtables.Record{}, fmt.Errorf("jsonl: decode line %d: %w", s.line, err)
		}
		return rec, nil
	}
}

func (s *Source) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

var _ recordsource.Source = (*Source)(nil)
