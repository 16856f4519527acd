// Package object defines the raw PDF object model and the mutable store
// that holds a parsed document's indirect objects.
package object

import (
	"fmt"
	"sort"
)

// Ref identifies an indirect object by number and generation.
type Ref struct {
	Num int
	Gen int
}

func (r Ref) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is implemented by every PDF value kind.
type Object interface {
	Kind() string
}

// Name is a PDF name without the leading slash.
type Name string

func (Name) Kind() string     { return "name" }
func (n Name) String() string { return string(n) }

// Integer is a PDF integer.
type Integer int64

func (Integer) Kind() string { return "integer" }

// Real is a PDF real number.
type Real float64

func (Real) Kind() string { return "real" }

// Bool is a PDF boolean.
type Bool bool

func (Bool) Kind() string { return "bool" }

// Null is the PDF null object.
type Null struct{}

func (Null) Kind() string { return "null" }

// String is a PDF string. Hex tracks whether the source used <...> form,
// which the writer preserves.
type String struct {
	Data []byte
	Hex  bool
}

func (String) Kind() string { return "string" }

// Reference is an indirect reference appearing inside another object.
type Reference struct {
	Ref Ref
}

func (Reference) Kind() string { return "ref" }

// Array is a PDF array.
type Array struct {
	Items []Object
}

func (*Array) Kind() string { return "array" }

func (a *Array) Len() int { return len(a.Items) }

func (a *Array) At(i int) (Object, bool) {
	if i < 0 || i >= len(a.Items) {
		return nil, false
	}
	return a.Items[i], true
}

func (a *Array) Append(items ...Object) { a.Items = append(a.Items, items...) }

// Floats converts every numeric element, skipping anything else.
func (a *Array) Floats() []float64 {
	out := make([]float64, 0, len(a.Items))
	for _, it := range a.Items {
		if f, ok := AsFloat(it); ok {
			out = append(out, f)
		}
	}
	return out
}

// Dict is a PDF dictionary keyed by name.
type Dict struct {
	KV map[Name]Object
}

func NewDict() *Dict { return &Dict{KV: make(map[Name]Object)} }

func (*Dict) Kind() string { return "dict" }

func (d *Dict) Len() int { return len(d.KV) }

func (d *Dict) Get(key Name) (Object, bool) {
	o, ok := d.KV[key]
	return o, ok
}

func (d *Dict) Set(key Name, value Object) {
	if d.KV == nil {
		d.KV = make(map[Name]Object)
	}
	d.KV[key] = value
}

func (d *Dict) Delete(key Name) { delete(d.KV, key) }

// SortedKeys returns the keys in lexical order so serialization and
// iteration stay deterministic.
func (d *Dict) SortedKeys() []Name {
	keys := make([]Name, 0, len(d.KV))
	for k := range d.KV {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Name returns the value of key when it is a direct name.
func (d *Dict) Name(key Name) (Name, bool) {
	if o, ok := d.KV[key]; ok {
		if n, ok := o.(Name); ok {
			return n, true
		}
	}
	return "", false
}

// Int returns the value of key when it is a direct integer.
func (d *Dict) Int(key Name) (int64, bool) {
	if o, ok := d.KV[key]; ok {
		if i, ok := o.(Integer); ok {
			return int64(i), true
		}
	}
	return 0, false
}

// Float returns the value of key when it is a direct number.
func (d *Dict) Float(key Name) (float64, bool) {
	if o, ok := d.KV[key]; ok {
		return AsFloat(o)
	}
	return 0, false
}

// Bool returns the value of key when it is a direct boolean.
func (d *Dict) Bool(key Name) (bool, bool) {
	if o, ok := d.KV[key]; ok {
		if b, ok := o.(Bool); ok {
			return bool(b), true
		}
	}
	return false, false
}

// StringBytes returns the value of key when it is a direct string.
func (d *Dict) StringBytes(key Name) ([]byte, bool) {
	if o, ok := d.KV[key]; ok {
		if s, ok := o.(String); ok {
			return s.Data, true
		}
	}
	return nil, false
}

// Array returns the value of key when it is a direct array.
func (d *Dict) Array(key Name) (*Array, bool) {
	if o, ok := d.KV[key]; ok {
		if a, ok := o.(*Array); ok {
			return a, true
		}
	}
	return nil, false
}

// Dict returns the value of key when it is a direct dictionary.
func (d *Dict) Dict(key Name) (*Dict, bool) {
	if o, ok := d.KV[key]; ok {
		if sub, ok := o.(*Dict); ok {
			return sub, true
		}
	}
	return nil, false
}

// Ref returns the value of key when it is an indirect reference.
func (d *Dict) Ref(key Name) (Ref, bool) {
	if o, ok := d.KV[key]; ok {
		if r, ok := o.(Reference); ok {
			return r.Ref, true
		}
	}
	return Ref{}, false
}

// Stream is a stream object: dictionary plus raw (still encoded) bytes.
type Stream struct {
	Dict *Dict
	Raw  []byte
}

func NewStream(dict *Dict, raw []byte) *Stream {
	if dict == nil {
		dict = NewDict()
	}
	dict.Set("Length", Integer(len(raw)))
	return &Stream{Dict: dict, Raw: raw}
}

func (*Stream) Kind() string { return "stream" }

// SetRaw replaces the stream bytes and keeps /Length in sync.
func (s *Stream) SetRaw(raw []byte) {
	s.Raw = raw
	s.Dict.Set("Length", Integer(len(raw)))
}

// AsFloat converts an Integer or Real to float64.
func AsFloat(o Object) (float64, bool) {
	switch v := o.(type) {
	case Integer:
		return float64(v), true
	case Real:
		return float64(v), true
	}
	return 0, false
}

// AsInt converts an Integer or a whole-valued Real to int64.
func AsInt(o Object) (int64, bool) {
	switch v := o.(type) {
	case Integer:
		return int64(v), true
	case Real:
		return int64(v), true
	}
	return 0, false
}

// NewArray builds an array from items.
func NewArray(items ...Object) *Array { return &Array{Items: items} }

// NewRef wraps num/gen as a Reference value.
func NewRef(num, gen int) Reference { return Reference{Ref: Ref{Num: num, Gen: gen}} }

// RectArray builds the [llx lly urx ury] array used by /MediaBox and /Rect.
func RectArray(llx, lly, urx, ury float64) *Array {
	return NewArray(Real(llx), Real(lly), Real(urx), Real(ury))
}
