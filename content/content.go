// Package content parses page content streams into operator sequences
// and edits them: appending operators and inserting text runs in the
// built-in base font.
package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"leanpdf/filters"
	"leanpdf/object"
	"leanpdf/scanner"
)

// Operation is one content operator with the operands that preceded it.
type Operation struct {
	Operator string
	Operands []object.Object
	// Inline image payload for ID; empty otherwise.
	Image []byte
}

// Parse tokenizes a decoded content stream. Unknown operators are kept
// as-is so a later pass can decide how to treat them.
func Parse(data []byte) ([]Operation, error) {
	s := scanner.New(bytes.NewReader(data), scanner.Config{})
	var ops []Operation
	var operands []object.Object
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ops, err
		}
		switch tok.Type {
		case scanner.TokenKeyword:
			ops = append(ops, Operation{Operator: tok.Str, Operands: operands})
			operands = nil
		case scanner.TokenInlineImage:
			ops = append(ops, Operation{Operator: "ID", Operands: operands, Image: tok.Bytes})
			operands = nil
		default:
			val, err := operandFrom(s, tok)
			if err != nil {
				return ops, err
			}
			operands = append(operands, val)
		}
	}
	return ops, nil
}

func operandFrom(s *scanner.Scanner, tok scanner.Token) (object.Object, error) {
	switch tok.Type {
	case scanner.TokenDict:
		d := object.NewDict()
		for {
			t, err := s.Next()
			if err != nil {
				return nil, errors.New("unterminated dictionary operand")
			}
			if t.Type == scanner.TokenKeyword && t.Str == ">>" {
				return d, nil
			}
			if t.Type != scanner.TokenName {
				return nil, errors.New("dictionary operand key must be a name")
			}
			vt, err := s.Next()
			if err != nil {
				return nil, err
			}
			v, err := operandFrom(s, vt)
			if err != nil {
				return nil, err
			}
			d.Set(object.Name(t.Str), v)
		}
	case scanner.TokenArray:
		arr := &object.Array{}
		for {
			t, err := s.Next()
			if err != nil {
				return nil, errors.New("unterminated array operand")
			}
			if t.Type == scanner.TokenKeyword && t.Str == "]" {
				return arr, nil
			}
			item, err := operandFrom(s, t)
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
	default:
		return nil, fmt.Errorf("unexpected token %v in content stream", tok.Type)
	}
}

// Decoded concatenates a page's content streams after filter decoding.
// contents is the raw /Contents entry: a stream reference, an array of
// them, or nil for an empty page.
func Decoded(ctx context.Context, store *object.Store, contents object.Object, pipeline *filters.Pipeline) ([]byte, error) {
	if contents == nil {
		return nil, nil
	}
	var out bytes.Buffer
	streams, err := contentStreams(store, contents)
	if err != nil {
		return nil, err
	}
	for _, st := range streams {
		data, err := pipeline.DecodeStream(ctx, st, store.Resolve)
		if err != nil {
			return nil, err
		}
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.Write(data)
	}
	return out.Bytes(), nil
}

func contentStreams(store *object.Store, contents object.Object) ([]*object.Stream, error) {
	switch v := store.Resolve(contents).(type) {
	case *object.Stream:
		return []*object.Stream{v}, nil
	case *object.Array:
		streams := make([]*object.Stream, 0, len(v.Items))
		for _, item := range v.Items {
			st, ok := store.Resolve(item).(*object.Stream)
			if !ok {
				return nil, errors.New("/Contents array item is not a stream")
			}
			streams = append(streams, st)
		}
		return streams, nil
	case object.Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("/Contents is %s, not a stream", v.Kind())
	}
}
