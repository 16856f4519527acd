package recovery

import (
	"errors"
	"testing"
)

func TestStrictAlwaysFails(t *testing.T) {
	s := NewStrict()
	if got := s.OnError(errors.New("bad token"), Location{Component: "scanner"}); got != ActionFail {
		t.Errorf("Strict returned %v, want ActionFail", got)
	}
}

func TestLenientAccumulates(t *testing.T) {
	l := NewLenient()
	err := errors.New("unterminated string")
	if got := l.OnError(err, Location{ByteOffset: 42, ObjectNum: 7, Component: "scanner"}); got != ActionFix {
		t.Fatalf("Lenient returned %v, want ActionFix", got)
	}
	if len(l.Errors) != 1 {
		t.Fatalf("expected one recorded error, got %d", len(l.Errors))
	}
	if !errors.Is(l.Errors[0], err) {
		t.Error("recorded error lost its cause")
	}
}

func TestLenientErrorCap(t *testing.T) {
	l := &Lenient{MaxErrors: 3}
	var last Action
	for i := 0; i < 3; i++ {
		last = l.OnError(errors.New("junk"), Location{})
	}
	if last != ActionFail {
		t.Errorf("expected ActionFail at the cap, got %v", last)
	}
}
