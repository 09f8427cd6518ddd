package jsonl

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/route-beacon/bgpview/internal/recordsource"
	"github.com/route-beacon/bgpview/internal/routingtables"
)

func TestSourceDecodesLines(t *testing.T) {
	data := `{"collector":"rrc00","time_sec":100,"type":1,"status":0}
{"collector":"rrc00","time_sec":101,"type":1,"status":0}
`
	s := Open(strings.NewReader(data))
	defer s.Close()

	rec, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Collector != "rrc00" || rec.TimeSec != 100 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	rec, err = s.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.TimeSec != 101 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	_, err = s.Next(context.Background())
	if !errors.Is(err, recordsource.ErrEOF) {
		t.Fatalf("expected ErrEOF, got %v", err)
	}
}

func TestSourceSkipsBlankLines(t *testing.T) {
	data := "\n\n" + `{"collector":"rrc00","time_sec":1,"type":0,"status":0}` + "\n"
	s := Open(strings.NewReader(data))
	defer s.Close()

	rec, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Type != routingtables.RecordTypeRib {
		t.Fatalf("expected RecordTypeRib, got %v", rec.Type)
	}
}
