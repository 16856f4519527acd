package object

import (
	"sort"
)

// maxRefChain bounds reference-to-reference chains so a cyclic file
// cannot hang resolution.
const maxRefChain = 32

// Store owns every indirect object of an open document. All mutation of
// document state flows through the store so that dirty tracking stays
// accurate for incremental saves.
type Store struct {
	objects map[Ref]Object
	trailer *Dict
	dirty   map[Ref]struct{}
	maxNum  int
}

func NewStore() *Store {
	return &Store{
		objects: make(map[Ref]Object),
		trailer: NewDict(),
		dirty:   make(map[Ref]struct{}),
	}
}

// Load installs a parsed object without marking it dirty.
func (s *Store) Load(ref Ref, obj Object) {
	s.objects[ref] = obj
	if ref.Num > s.maxNum {
		s.maxNum = ref.Num
	}
}

// Get returns the object stored for ref, if any.
func (s *Store) Get(ref Ref) (Object, bool) {
	o, ok := s.objects[ref]
	return o, ok
}

// Put replaces the object stored for ref and marks it dirty.
func (s *Store) Put(ref Ref, obj Object) {
	s.objects[ref] = obj
	if ref.Num > s.maxNum {
		s.maxNum = ref.Num
	}
	s.dirty[ref] = struct{}{}
}

// Allocate assigns the next free object number to obj and marks it
// dirty so it is written out on the next save.
func (s *Store) Allocate(obj Object) Ref {
	s.maxNum++
	ref := Ref{Num: s.maxNum, Gen: 0}
	s.objects[ref] = obj
	s.dirty[ref] = struct{}{}
	return ref
}

// MarkDirty records an in-place mutation of an already stored object.
func (s *Store) MarkDirty(ref Ref) {
	if _, ok := s.objects[ref]; ok {
		s.dirty[ref] = struct{}{}
	}
}

// IsDirty reports whether ref has been mutated since load or last save.
func (s *Store) IsDirty(ref Ref) bool {
	_, ok := s.dirty[ref]
	return ok
}

// DirtyRefs returns the mutated refs in ascending object-number order.
func (s *Store) DirtyRefs() []Ref {
	refs := make([]Ref, 0, len(s.dirty))
	for r := range s.dirty {
		refs = append(refs, r)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
	return refs
}

// ClearDirty resets tracking after a successful save.
func (s *Store) ClearDirty() { s.dirty = make(map[Ref]struct{}) }

// Refs returns every stored ref in ascending order.
func (s *Store) Refs() []Ref {
	refs := make([]Ref, 0, len(s.objects))
	for r := range s.objects {
		refs = append(refs, r)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
	return refs
}

func (s *Store) Len() int { return len(s.objects) }

// MaxNum returns the highest object number in use.
func (s *Store) MaxNum() int { return s.maxNum }

// Trailer returns the document trailer dictionary.
func (s *Store) Trailer() *Dict { return s.trailer }

// SetTrailer installs the trailer parsed from the file.
func (s *Store) SetTrailer(d *Dict) {
	if d != nil {
		s.trailer = d
	}
}

// Resolve follows obj through reference chains until it reaches a
// non-reference value. A ref to a free or absent entry resolves to
// null, matching reader semantics.
func (s *Store) Resolve(obj Object) Object {
	for i := 0; i < maxRefChain; i++ {
		r, ok := obj.(Reference)
		if !ok {
			return obj
		}
		next, found := s.objects[r.Ref]
		if !found || next == nil {
			return Null{}
		}
		obj = next
	}
	return Null{}
}

// ResolveDict resolves key in d to a dictionary. Stream dictionaries
// do not qualify; callers wanting streams use ResolveStream.
func (s *Store) ResolveDict(d *Dict, key Name) (*Dict, bool) {
	if d == nil {
		return nil, false
	}
	o, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	sub, ok := s.Resolve(o).(*Dict)
	return sub, ok
}

// ResolveArray resolves key in d to an array.
func (s *Store) ResolveArray(d *Dict, key Name) (*Array, bool) {
	if d == nil {
		return nil, false
	}
	o, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	a, ok := s.Resolve(o).(*Array)
	return a, ok
}

// ResolveStream resolves key in d to a stream object.
func (s *Store) ResolveStream(d *Dict, key Name) (*Stream, bool) {
	if d == nil {
		return nil, false
	}
	o, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	st, ok := s.Resolve(o).(*Stream)
	return st, ok
}

// ResolveName resolves key in d to a name.
func (s *Store) ResolveName(d *Dict, key Name) (Name, bool) {
	if d == nil {
		return "", false
	}
	o, ok := d.Get(key)
	if !ok {
		return "", false
	}
	n, ok := s.Resolve(o).(Name)
	return n, ok
}

// ResolveInt resolves key in d to an integer.
func (s *Store) ResolveInt(d *Dict, key Name) (int64, bool) {
	if d == nil {
		return 0, false
	}
	o, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	return AsInt(s.Resolve(o))
}

// ResolveFloat resolves key in d to a number.
func (s *Store) ResolveFloat(d *Dict, key Name) (float64, bool) {
	if d == nil {
		return 0, false
	}
	o, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	return AsFloat(s.Resolve(o))
}

// ResolveString resolves key in d to string bytes.
func (s *Store) ResolveString(d *Dict, key Name) ([]byte, bool) {
	if d == nil {
		return nil, false
	}
	o, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	str, ok := s.Resolve(o).(String)
	if !ok {
		return nil, false
	}
	return str.Data, true
}

// RefFor finds the ref under which obj is stored. Identity comparison
// only works for pointer kinds (dict, array, stream).
func (s *Store) RefFor(obj Object) (Ref, bool) {
	switch obj.(type) {
	case *Dict, *Array, *Stream:
	default:
		return Ref{}, false
	}
	for r, o := range s.objects {
		switch o.(type) {
		case *Dict, *Array, *Stream:
			if o == obj {
				return r, true
			}
		}
	}
	return Ref{}, false
}
