package leanpdf

import "fmt"

// ParseError reports a file whose syntax could not be read: broken
// header, trailer, xref, or object layer.
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.Op, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// StructureError reports a file that tokenizes but whose document
// graph is unusable: missing catalog, cyclic or empty page tree.
type StructureError struct {
	Op  string
	Err error
}

func (e *StructureError) Error() string { return fmt.Sprintf("structure %s: %v", e.Op, e.Err) }
func (e *StructureError) Unwrap() error { return e.Err }

// ValidationError reports a caller mistake: page index out of range,
// a field value outside its export states, a bad zoom factor.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *ValidationError) Unwrap() error { return e.Err }

// IOError wraps filesystem failures during open and save.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }
