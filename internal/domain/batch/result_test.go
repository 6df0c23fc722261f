package batch

import (
	"errors"
	"testing"
)

func TestNewOK(t *testing.T) {
	r := NewOK("chunk-1", 3)
	if r.ID() != "chunk-1" || r.Line() != 3 {
		t.Errorf("ID() = %q, Line() = %d", r.ID(), r.Line())
	}
	if r.Status() != StatusOK {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusOK)
	}
	if r.Err() != nil {
		t.Errorf("Err() = %v, want nil", r.Err())
	}
}

func TestNewError(t *testing.T) {
	err := errors.New("something failed")
	r := NewError("chunk-2", 7, err)
	if r.Status() != StatusError {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusError)
	}
	if !errors.Is(r.Err(), err) {
		t.Errorf("Err() = %v, want %v", r.Err(), err)
	}
}

func TestSummary(t *testing.T) {
	var s Summary
	s.Add(NewOK("a", 1))
	s.Add(NewOK("b", 2))
	s.Add(NewSkipped("", 3, errors.New("bad json")))
	s.Add(NewError("d", 4, errors.New("store down")))

	if s.Stored != 2 || s.Skipped != 1 || s.Failed != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.Total() != 4 {
		t.Errorf("Total() = %d, want 4", s.Total())
	}
}
