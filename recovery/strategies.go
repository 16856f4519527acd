package recovery

import "fmt"

// Strict fails on the first malformed construct.
type Strict struct{}

func NewStrict() *Strict { return &Strict{} }

func (*Strict) OnError(err error, loc Location) Action { return ActionFail }

// Lenient accumulates problems and keeps parsing, up to MaxErrors.
// Past the cap it fails, so a pathological file cannot spin forever.
type Lenient struct {
	MaxErrors int
	Errors    []error
}

const defaultMaxErrors = 256

func NewLenient() *Lenient { return &Lenient{MaxErrors: defaultMaxErrors} }

func (l *Lenient) OnError(err error, loc Location) Action {
	l.Errors = append(l.Errors, fmt.Errorf("%s at offset %d (obj %d %d): %w",
		loc.Component, loc.ByteOffset, loc.ObjectNum, loc.ObjectGen, err))
	if l.MaxErrors > 0 && len(l.Errors) >= l.MaxErrors {
		return ActionFail
	}
	return ActionFix
}
