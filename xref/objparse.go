package xref

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"leanpdf/object"
	"leanpdf/scanner"
)

// The resolver needs just enough object parsing to read trailer
// dictionaries and xref stream objects; full document loading lives in
// the parser package.

func parseDictAt(data []byte, offset int64) (*object.Dict, error) {
	s := scanner.New(bytes.NewReader(data), scanner.Config{})
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	if tok.Type != scanner.TokenDict {
		return nil, errors.New("expected dictionary")
	}
	return parseDictBody(s)
}

// parseStreamObjectAt reads "N G obj << ... >> stream ... endstream"
// and returns the stream. /Length must be direct here; an xref stream
// cannot depend on the table being built from it.
func parseStreamObjectAt(data []byte, offset int64) (*object.Stream, error) {
	s := scanner.New(bytes.NewReader(data), scanner.Config{})
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	if tok.Type != scanner.TokenNumber || !tok.IsInt {
		return nil, errors.New("expected object number")
	}
	if tok, err = s.Next(); err != nil || tok.Type != scanner.TokenNumber {
		return nil, errors.New("expected generation number")
	}
	if tok, err = s.Next(); err != nil || tok.Type != scanner.TokenKeyword || tok.Str != "obj" {
		return nil, errors.New("expected obj keyword")
	}
	if tok, err = s.Next(); err != nil || tok.Type != scanner.TokenDict {
		return nil, errors.New("expected stream dictionary")
	}
	dict, err := parseDictBody(s)
	if err != nil {
		return nil, err
	}
	if length, ok := dict.Int("Length"); ok {
		s.SetNextStreamLength(length)
	}
	tok, err = s.Next()
	if err != nil {
		return nil, err
	}
	if tok.Type != scanner.TokenStream {
		return nil, errors.New("expected stream payload")
	}
	return &object.Stream{Dict: dict, Raw: tok.Bytes}, nil
}

func parseDictBody(s *scanner.Scanner) (*object.Dict, error) {
	d := object.NewDict()
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("dictionary key must be a name, got %v", tok.Type)
		}
		val, err := parseValue(s)
		if err != nil {
			return nil, err
		}
		d.Set(object.Name(tok.Str), val)
	}
}

func parseValue(s *scanner.Scanner) (object.Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	return parseValueFrom(s, tok)
}

func parseValueFrom(s *scanner.Scanner, tok scanner.Token) (object.Object, error) {
	switch tok.Type {
	case scanner.TokenDict:
		return parseDictBody(s)
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
			item, err := parseValueFrom(s, t)
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
		return nil, fmt.Errorf("unexpected token %v in object", tok.Type)
	}
}
