// Package filters decodes and encodes PDF stream filters. A Pipeline
// applies a filter chain under size and time limits so hostile files
// cannot blow up memory or spin forever.
package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hhrutter/lzw"

	"leanpdf/object"
)

// Decoder decodes one filter's encoding.
type Decoder interface {
	Name() object.Name
	Decode(ctx context.Context, input []byte, params *object.Dict) ([]byte, error)
}

// Limits bounds a decode run.
type Limits struct {
	MaxDecompressedSize int64
	MaxDecodeTime       time.Duration
}

// Pipeline applies filter chains.
type Pipeline struct {
	decoders map[object.Name]Decoder
	limits   Limits
}

// NewPipeline builds a pipeline over the given decoders.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	m := make(map[object.Name]Decoder, len(decoders))
	for _, d := range decoders {
		m[d.Name()] = d
	}
	return &Pipeline{decoders: m, limits: limits}
}

// NewDefaultPipeline covers every filter the engine decodes.
func NewDefaultPipeline(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		FlateDecoder{MaxOutput: limits.MaxDecompressedSize},
		LZWDecoder{MaxOutput: limits.MaxDecompressedSize},
		ASCIIHexDecoder{},
		ASCII85Decoder{},
		RunLengthDecoder{},
	}, limits)
}

// Decode runs input through the named filters in order.
func (p *Pipeline) Decode(ctx context.Context, input []byte, names []object.Name, params []*object.Dict) ([]byte, error) {
	if p.limits.MaxDecodeTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.limits.MaxDecodeTime)
		defer cancel()
	}
	data := input
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dec, ok := p.decoders[name]
		if !ok {
			return nil, fmt.Errorf("unknown filter /%s", name)
		}
		var param *object.Dict
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, errors.New("decoded size exceeds limit")
		}
		data = out
	}
	return data, nil
}

// DecodeStream decodes a stream object using its own /Filter chain.
// resolve dereferences indirect /Filter, /DecodeParms and their
// elements; pass nil when the dictionary is known to be direct.
func (p *Pipeline) DecodeStream(ctx context.Context, st *object.Stream, resolve func(object.Object) object.Object) ([]byte, error) {
	names, params := ExtractFilters(st.Dict, resolve)
	return p.Decode(ctx, st.Raw, names, params)
}

// FlateDecoder handles FlateDecode. PDF flate data is zlib-wrapped;
// some producers emit raw deflate, so that is tried second.
type FlateDecoder struct {
	MaxOutput int64
}

func (FlateDecoder) Name() object.Name { return "FlateDecode" }

func (d FlateDecoder) Decode(ctx context.Context, in []byte, params *object.Dict) ([]byte, error) {
	var r io.ReadCloser
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err != nil {
		r = flate.NewReader(bytes.NewReader(in))
	} else {
		r = zr
	}
	defer r.Close()
	out, err := readAllLimited(r, d.MaxOutput)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params)
}

// LZWDecoder handles LZWDecode. /EarlyChange defaults to 1.
type LZWDecoder struct {
	MaxOutput int64
}

func (LZWDecoder) Name() object.Name { return "LZWDecode" }

func (d LZWDecoder) Decode(ctx context.Context, in []byte, params *object.Dict) ([]byte, error) {
	earlyChange := true
	if params != nil {
		if ec, ok := params.Int("EarlyChange"); ok {
			earlyChange = ec != 0
		}
	}
	r := lzw.NewReader(bytes.NewReader(in), earlyChange)
	defer r.Close()
	out, err := readAllLimited(r, d.MaxOutput)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params)
}

// ASCIIHexDecoder handles ASCIIHexDecode.
type ASCIIHexDecoder struct{}

func (ASCIIHexDecoder) Name() object.Name { return "ASCIIHexDecode" }

func (ASCIIHexDecoder) Decode(ctx context.Context, in []byte, params *object.Dict) ([]byte, error) {
	compact := make([]byte, 0, len(in))
	for _, c := range in {
		if c == '>' {
			break
		}
		if isSpace(c) {
			continue
		}
		compact = append(compact, c)
	}
	if len(compact)%2 == 1 {
		compact = append(compact, '0')
	}
	out := make([]byte, hex.DecodedLen(len(compact)))
	n, err := hex.Decode(out, compact)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// ASCII85Decoder handles ASCII85Decode.
type ASCII85Decoder struct{}

func (ASCII85Decoder) Name() object.Name { return "ASCII85Decode" }

func (ASCII85Decoder) Decode(ctx context.Context, in []byte, params *object.Dict) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	trimmed = bytes.TrimSuffix(trimmed, []byte("~>"))
	out := make([]byte, len(trimmed)*2)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// RunLengthDecoder handles RunLengthDecode.
type RunLengthDecoder struct{}

func (RunLengthDecoder) Name() object.Name { return "RunLengthDecode" }

func (RunLengthDecoder) Decode(ctx context.Context, in []byte, params *object.Dict) ([]byte, error) {
	var out bytes.Buffer
	i := 0
	for i < len(in) {
		l := in[i]
		i++
		switch {
		case l == 128:
			return out.Bytes(), nil
		case l < 128:
			n := int(l) + 1
			if i+n > len(in) {
				return nil, errors.New("run length literal overruns input")
			}
			out.Write(in[i : i+n])
			i += n
		default:
			if i >= len(in) {
				return nil, errors.New("run length repeat overruns input")
			}
			n := 257 - int(l)
			out.Write(bytes.Repeat(in[i:i+1], n))
			i++
		}
	}
	return out.Bytes(), nil
}

// FlateEncode compresses data as zlib-wrapped deflate, the form every
// reader accepts for FlateDecode.
func FlateEncode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func readAllLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	out, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return out, err
	}
	if int64(len(out)) > max {
		return nil, errors.New("decoded size exceeds limit")
	}
	return out, nil
}

func isSpace(c byte) bool {
	switch c {
	case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
		return true
	}
	return false
}
