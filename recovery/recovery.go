// Package recovery decides how the scanner and parser react to
// malformed input: fail fast, skip the construct, patch it up, or note
// it and continue.
package recovery

// Strategy is consulted whenever a parsing layer hits something the
// file format does not allow.
type Strategy interface {
	OnError(err error, loc Location) Action
}

// Location pins an error to a byte offset and, when known, the
// indirect object being parsed.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

// Action tells the caller how to proceed.
type Action int

const (
	// ActionFail aborts parsing with the error.
	ActionFail Action = iota
	// ActionSkip drops the offending construct.
	ActionSkip
	// ActionFix substitutes a best-guess repair.
	ActionFix
	// ActionWarn records the problem and keeps the construct as-is.
	ActionWarn
)
