package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"leanpdf/filters"
	"leanpdf/object"
	"leanpdf/recovery"
	"leanpdf/scanner"
	"leanpdf/xref"
)

func loc(ref object.Ref, component string) recovery.Location {
	return recovery.Location{ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: component}
}

// loader materializes indirect objects from file bytes or from decoded
// object streams. Decoded object streams are cached per container so a
// stream holding fifty objects is inflated once.
type loader struct {
	data     []byte
	table    *xref.Table
	store    *object.Store
	cfg      Config
	pipeline *filters.Pipeline
	streams  map[int][]objStreamEntry
	loading  map[int]bool
}

type objStreamEntry struct {
	num int
	obj object.Object
}

func newLoader(data []byte, table *xref.Table, store *object.Store, cfg Config) *loader {
	return &loader{
		data:     data,
		table:    table,
		store:    store,
		cfg:      cfg,
		pipeline: filters.NewDefaultPipeline(cfg.Filters),
		streams:  map[int][]objStreamEntry{},
		loading:  map[int]bool{},
	}
}

// Load reads the object behind ref. The store is consulted first so
// repeated loads of a shared container are free.
func (l *loader) Load(ctx context.Context, ref object.Ref) (object.Object, error) {
	if obj, ok := l.store.Get(ref); ok {
		return obj, nil
	}
	entry, ok := l.table.Lookup(ref.Num)
	if !ok {
		return nil, fmt.Errorf("object %d not in xref", ref.Num)
	}
	switch entry.Type {
	case xref.EntryInFile:
		return l.loadAt(ctx, entry.Offset, ref)
	case xref.EntryInObjectStream:
		return l.loadFromObjectStream(ctx, entry.StreamNum, entry.StreamIdx, ref.Num)
	default:
		return nil, fmt.Errorf("object %d is free", ref.Num)
	}
}

// loadAt parses "N G obj ... endobj" at a byte offset. Header
// num/gen mismatches and a missing endobj are tolerated under a
// lenient strategy.
func (l *loader) loadAt(ctx context.Context, offset int64, ref object.Ref) (object.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := l.newScanner(offset, ref)
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	if tok.Type != scanner.TokenNumber || !tok.IsInt {
		return nil, fmt.Errorf("object %d: no header at offset %d", ref.Num, offset)
	}
	num := int(tok.Int)
	if tok, err = s.Next(); err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt {
		return nil, fmt.Errorf("object %d: bad generation in header", ref.Num)
	}
	gen := int(tok.Int)
	if tok, err = s.Next(); err != nil || tok.Type != scanner.TokenKeyword || tok.Str != "obj" {
		return nil, fmt.Errorf("object %d: missing obj keyword", ref.Num)
	}
	if num != ref.Num || gen != ref.Gen {
		err := fmt.Errorf("object %d %d: header says %d %d", ref.Num, ref.Gen, num, gen)
		if l.cfg.Recovery.OnError(err, loc(ref, "loader:header")) == recovery.ActionFail {
			return nil, err
		}
	}

	val, err := l.parseValue(ctx, s, ref)
	if err != nil {
		return nil, err
	}

	tok, err = s.Next()
	if errors.Is(err, io.EOF) {
		return val, nil
	}
	if err != nil {
		return nil, err
	}
	if tok.Type == scanner.TokenStream {
		dict, ok := val.(*object.Dict)
		if !ok {
			return nil, fmt.Errorf("object %d: stream without dictionary", ref.Num)
		}
		return &object.Stream{Dict: dict, Raw: tok.Bytes}, nil
	}
	if tok.Type != scanner.TokenKeyword || tok.Str != "endobj" {
		err := fmt.Errorf("object %d: expected endobj, got %q", ref.Num, tok.Str)
		if l.cfg.Recovery.OnError(err, loc(ref, "loader:endobj")) == recovery.ActionFail {
			return nil, err
		}
	}
	return val, nil
}

// parseValue is the descent used for document objects. It differs from
// the trailer-only descent in xref in one way: when the value is a
// stream dictionary its /Length may be an indirect reference, which is
// resolved against the table before the stream payload is scanned.
func (l *loader) parseValue(ctx context.Context, s *scanner.Scanner, ref object.Ref) (object.Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	val, err := l.parseValueFrom(ctx, s, tok, ref)
	if err != nil {
		return nil, err
	}
	if dict, ok := val.(*object.Dict); ok {
		if n, err := l.streamLength(ctx, dict); err == nil && n >= 0 {
			s.SetNextStreamLength(n)
		}
	}
	return val, nil
}

func (l *loader) parseValueFrom(ctx context.Context, s *scanner.Scanner, tok scanner.Token, ref object.Ref) (object.Object, error) {
	switch tok.Type {
	case scanner.TokenDict:
		return l.parseDictBody(ctx, s, ref)
	case scanner.TokenArray:
		arr := &object.Array{}
		for {
			t, err := s.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil, errors.New("unterminated array")
				}
				return nil, err
			}
			if t.Type == scanner.TokenKeyword && t.Str == "]" {
				return arr, nil
			}
			item, err := l.parseValueFrom(ctx, s, t, ref)
			if err != nil {
				return nil, err
			}
			arr.Append(item)
		}
	case scanner.TokenName:
		return object.Name(tok.Str), nil
	case scanner.TokenString:
		return object.String{Data: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return object.Integer(tok.Int), nil
		}
		return object.Real(tok.Float), nil
	case scanner.TokenBoolean:
		return object.Bool(tok.Bool), nil
	case scanner.TokenNull:
		return object.Null{}, nil
	case scanner.TokenRef:
		return object.NewRef(tok.Num, tok.Gen), nil
	default:
		return nil, fmt.Errorf("object %d: unexpected token %v", ref.Num, tok.Type)
	}
}

func (l *loader) parseDictBody(ctx context.Context, s *scanner.Scanner, ref object.Ref) (*object.Dict, error) {
	d := object.NewDict()
	for {
		tok, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("object %d: unterminated dictionary", ref.Num)
				if l.cfg.Recovery.OnError(err, loc(ref, "loader:dict")) == recovery.ActionFail {
					return nil, err
				}
				return d, nil
			}
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("object %d: dictionary key must be a name", ref.Num)
		}
		key := object.Name(tok.Str)
		vtok, err := s.Next()
		if err != nil {
			return nil, err
		}
		val, err := l.parseValueFrom(ctx, s, vtok, ref)
		if err != nil {
			return nil, err
		}
		d.Set(key, val)
	}
}

// streamLength returns /Length, chasing an indirect reference through
// the table. -1 means no usable length, leaving the scanner to its
// endstream search.
func (l *loader) streamLength(ctx context.Context, dict *object.Dict) (int64, error) {
	v, ok := dict.Get("Length")
	if !ok {
		return -1, nil
	}
	switch t := v.(type) {
	case object.Integer:
		return int64(t), nil
	case object.Reference:
		obj, err := l.Load(ctx, t.Ref)
		if err != nil {
			return -1, err
		}
		if n, ok := obj.(object.Integer); ok {
			return int64(n), nil
		}
		return -1, errors.New("indirect /Length is not an integer")
	default:
		return -1, nil
	}
}

// loadFromObjectStream pulls object idx out of the container stream.
// The container is decoded once; its /First offset separates the
// num/offset header pairs from the packed objects.
func (l *loader) loadFromObjectStream(ctx context.Context, streamNum, idx, wantNum int) (object.Object, error) {
	entries, ok := l.streams[streamNum]
	if !ok {
		if l.loading[streamNum] {
			return nil, fmt.Errorf("object stream %d references itself", streamNum)
		}
		l.loading[streamNum] = true
		var err error
		entries, err = l.decodeObjectStream(ctx, streamNum)
		delete(l.loading, streamNum)
		if err != nil {
			return nil, err
		}
		l.streams[streamNum] = entries
	}
	if idx < 0 || idx >= len(entries) {
		return nil, fmt.Errorf("object stream %d: index %d out of range", streamNum, idx)
	}
	e := entries[idx]
	if e.num != wantNum {
		err := fmt.Errorf("object stream %d: slot %d holds %d, wanted %d", streamNum, idx, e.num, wantNum)
		if l.cfg.Recovery.OnError(err, loc(object.Ref{Num: wantNum}, "loader:objstm")) == recovery.ActionFail {
			return nil, err
		}
	}
	return e.obj, nil
}

func (l *loader) decodeObjectStream(ctx context.Context, streamNum int) ([]objStreamEntry, error) {
	container, err := l.Load(ctx, object.Ref{Num: streamNum, Gen: 0})
	if err != nil {
		return nil, err
	}
	st, ok := container.(*object.Stream)
	if !ok {
		return nil, fmt.Errorf("object %d is not an object stream", streamNum)
	}
	if typ, _ := st.Dict.Name("Type"); typ != "ObjStm" {
		return nil, fmt.Errorf("object %d: /Type is not ObjStm", streamNum)
	}
	count, ok := st.Dict.Int("N")
	if !ok || count < 0 {
		return nil, fmt.Errorf("object stream %d: missing /N", streamNum)
	}
	first, ok := st.Dict.Int("First")
	if !ok || first < 0 {
		return nil, fmt.Errorf("object stream %d: missing /First", streamNum)
	}
	decoded, err := l.pipeline.DecodeStream(ctx, st, l.resolveLoaded)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
	}
	if first > int64(len(decoded)) {
		return nil, fmt.Errorf("object stream %d: /First beyond payload", streamNum)
	}

	hs := scanner.New(bytes.NewReader(decoded[:first]), l.cfg.Scanner)
	pairs := make([][2]int64, 0, count)
	for i := int64(0); i < count; i++ {
		nt, err := hs.Next()
		if err != nil || nt.Type != scanner.TokenNumber || !nt.IsInt {
			return nil, fmt.Errorf("object stream %d: bad header pair %d", streamNum, i)
		}
		ot, err := hs.Next()
		if err != nil || ot.Type != scanner.TokenNumber || !ot.IsInt {
			return nil, fmt.Errorf("object stream %d: bad header pair %d", streamNum, i)
		}
		pairs = append(pairs, [2]int64{nt.Int, ot.Int})
	}

	entries := make([]objStreamEntry, 0, count)
	body := scanner.New(bytes.NewReader(decoded), l.cfg.Scanner)
	for i, pair := range pairs {
		off := first + pair[1]
		if off < 0 || off > int64(len(decoded)) {
			return nil, fmt.Errorf("object stream %d: offset %d out of range", streamNum, pair[1])
		}
		if err := body.SeekTo(off); err != nil {
			return nil, err
		}
		ref := object.Ref{Num: int(pair[0])}
		obj, err := l.parseValue(ctx, body, ref)
		if err != nil {
			return nil, fmt.Errorf("object stream %d: object %d at slot %d: %w", streamNum, pair[0], i, err)
		}
		entries = append(entries, objStreamEntry{num: int(pair[0]), obj: obj})
	}
	return entries, nil
}

// resolveLoaded resolves references against what is already in the
// store. Filter params are almost always direct, so a miss just
// returns the object untouched.
func (l *loader) resolveLoaded(o object.Object) object.Object {
	if ref, ok := o.(object.Reference); ok {
		if got, ok := l.store.Get(ref.Ref); ok {
			return got
		}
	}
	return o
}

func (l *loader) newScanner(offset int64, ref object.Ref) *scanner.Scanner {
	cfg := l.cfg.Scanner
	if cfg.Recovery == nil {
		cfg.Recovery = l.cfg.Recovery
	}
	s := scanner.New(bytes.NewReader(l.data), cfg)
	s.SetLocation(loc(ref, "loader"))
	// Seek past EOF cannot happen here, offsets come from the table.
	_ = s.SeekTo(offset)
	return s
}
