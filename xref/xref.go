// Package xref locates and parses cross-reference information: classic
// tables, cross-reference streams, and the /Prev chains that stitch
// incremental revisions together.
package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"leanpdf/filters"
	"leanpdf/object"
)

// EntryType says where an object's bytes live.
type EntryType int

const (
	// EntryFree marks a freed object number.
	EntryFree EntryType = iota
	// EntryInFile points at a byte offset of an uncompressed object.
	EntryInFile
	// EntryInObjectStream points into a compressed object stream.
	EntryInObjectStream
)

// Entry is one resolved cross-reference row.
type Entry struct {
	Type      EntryType
	Offset    int64 // EntryInFile
	Gen       int
	StreamNum int // EntryInObjectStream: container object number
	StreamIdx int // EntryInObjectStream: index within the container
}

// Table is the merged view across every revision, newest entry wins.
type Table struct {
	entries   map[int]Entry
	trailer   *object.Dict
	startXRef int64
	revisions int
}

// Lookup returns the entry for an object number.
func (t *Table) Lookup(num int) (Entry, bool) {
	e, ok := t.entries[num]
	return e, ok
}

// Objects returns every known in-use object number in ascending order.
func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for num, e := range t.entries {
		if e.Type != EntryFree {
			out = append(out, num)
		}
	}
	sort.Ints(out)
	return out
}

// Trailer returns the newest revision's trailer dictionary.
func (t *Table) Trailer() *object.Dict { return t.trailer }

// StartXRef is the offset the final startxref pointed at.
func (t *Table) StartXRef() int64 { return t.startXRef }

// Revisions counts the xref sections found along the /Prev chain.
func (t *Table) Revisions() int { return t.revisions }

// Config bounds resolution.
type Config struct {
	// MaxDepth caps the /Prev chain length.
	MaxDepth int
	// Pipeline decodes xref stream payloads; nil uses a default.
	Pipeline *filters.Pipeline
}

const defaultMaxDepth = 64

// Resolver walks the cross-reference chain of a document.
type Resolver struct {
	cfg Config
}

func NewResolver(cfg Config) *Resolver {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = filters.NewDefaultPipeline(filters.Limits{})
	}
	return &Resolver{cfg: cfg}
}

// Resolve parses the xref chain of data. The whole file is in memory;
// document opening is byte-slice based throughout the engine.
func (r *Resolver) Resolve(ctx context.Context, data []byte) (*Table, error) {
	start, err := FindStartXRef(data)
	if err != nil {
		return nil, err
	}
	t := &Table{entries: make(map[int]Entry), startXRef: start}
	visited := make(map[int64]bool)
	offset := start
	for depth := 0; offset >= 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= r.cfg.MaxDepth {
			return nil, errors.New("xref chain too deep")
		}
		if visited[offset] {
			return nil, errors.New("xref chain contains a cycle")
		}
		visited[offset] = true
		if offset >= int64(len(data)) {
			return nil, fmt.Errorf("xref offset %d beyond end of file", offset)
		}
		next, err := r.parseSection(ctx, data, offset, t)
		if err != nil {
			return nil, err
		}
		offset = next
	}
	if t.trailer == nil || t.trailer.Len() == 0 {
		return nil, errors.New("no trailer found")
	}
	return t, nil
}

// FindStartXRef locates the final startxref value.
func FindStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, errors.New("startxref not found")
	}
	rest := data[idx+len("startxref"):]
	for _, line := range strings.SplitN(string(rest), "\n", 4) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		val, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse startxref: %w", err)
		}
		if val <= 0 || val >= int64(len(data)) {
			return 0, fmt.Errorf("startxref offset out of range: %d", val)
		}
		return val, nil
	}
	return 0, errors.New("startxref value missing")
}

// parseSection dispatches on what sits at offset: the xref keyword for
// a classic table, or an indirect object holding an xref stream.
// It returns the /Prev offset or -1 at the end of the chain.
func (r *Resolver) parseSection(ctx context.Context, data []byte, offset int64, t *Table) (int64, error) {
	t.revisions++
	if bytes.HasPrefix(bytes.TrimLeft(data[offset:], " \t\r\n"), []byte("xref")) {
		return r.parseClassic(ctx, data, offset, t)
	}
	return r.parseStreamSection(ctx, data, offset, t)
}

func (r *Resolver) parseClassic(ctx context.Context, data []byte, offset int64, t *Table) (int64, error) {
	lines := newLineReader(data[offset:])
	first, ok := lines.next()
	if !ok || strings.TrimSpace(first) != "xref" {
		return 0, errors.New("xref keyword not found at offset")
	}
	for {
		line, ok := lines.next()
		if !ok {
			return 0, errors.New("xref section ended without trailer")
		}
		header := strings.TrimSpace(line)
		if header == "" {
			continue
		}
		if strings.HasPrefix(header, "trailer") {
			break
		}
		parts := strings.Fields(header)
		if len(parts) != 2 {
			return 0, fmt.Errorf("bad xref subsection header %q", header)
		}
		startNum, err1 := strconv.Atoi(parts[0])
		count, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || startNum < 0 || count < 0 {
			return 0, fmt.Errorf("bad xref subsection header %q", header)
		}
		for i := 0; i < count; i++ {
			entryLine, ok := lines.next()
			if !ok {
				return 0, errors.New("xref subsection truncated")
			}
			fields := strings.Fields(strings.TrimSpace(entryLine))
			if len(fields) < 3 {
				return 0, fmt.Errorf("bad xref entry %q", entryLine)
			}
			off, err1 := strconv.ParseInt(fields[0], 10, 64)
			gen, err2 := strconv.Atoi(fields[1])
			if err1 != nil || err2 != nil {
				return 0, fmt.Errorf("bad xref entry %q", entryLine)
			}
			num := startNum + i
			if _, claimed := t.entries[num]; claimed {
				continue // newer revision already owns this number
			}
			switch fields[2] {
			case "n":
				t.entries[num] = Entry{Type: EntryInFile, Offset: off, Gen: gen}
			case "f":
				t.entries[num] = Entry{Type: EntryFree, Gen: gen}
			default:
				return 0, fmt.Errorf("bad xref entry flag %q", fields[2])
			}
		}
	}
	// The trailer dictionary follows the trailer keyword, on the same
	// line or the next.
	rel := bytes.Index(data[offset:], []byte("trailer"))
	if rel < 0 {
		return 0, errors.New("trailer keyword not found")
	}
	trailer, err := parseDictAt(data, offset+int64(rel)+int64(len("trailer")))
	if err != nil {
		return 0, fmt.Errorf("parse trailer: %w", err)
	}
	if t.trailer == nil {
		t.trailer = trailer
	}
	// Hybrid files carry an /XRefStm pointing at a stream with the
	// entries a pre-1.5 reader would miss.
	if stm, ok := trailer.Int("XRefStm"); ok && stm > 0 && stm < int64(len(data)) {
		if _, err := r.parseStreamSection(ctx, data, stm, t); err != nil {
			return 0, fmt.Errorf("parse hybrid xref stream: %w", err)
		}
		t.revisions--
	}
	if prev, ok := trailer.Int("Prev"); ok {
		return prev, nil
	}
	return -1, nil
}

func (r *Resolver) parseStreamSection(ctx context.Context, data []byte, offset int64, t *Table) (int64, error) {
	st, err := parseStreamObjectAt(data, offset)
	if err != nil {
		return 0, fmt.Errorf("parse xref stream: %w", err)
	}
	dict := st.Dict
	if typ, _ := dict.Name("Type"); typ != "XRef" {
		return 0, fmt.Errorf("object at offset %d is not an xref stream", offset)
	}
	size, ok := dict.Int("Size")
	if !ok || size <= 0 {
		return 0, errors.New("xref stream missing /Size")
	}
	w, ok := dict.Array("W")
	if !ok || w.Len() != 3 {
		return 0, errors.New("xref stream missing /W")
	}
	var widths [3]int
	for i := 0; i < 3; i++ {
		v, _ := w.At(i)
		n, ok := object.AsInt(v)
		if !ok || n < 0 || n > 8 {
			return 0, errors.New("xref stream /W field out of range")
		}
		widths[i] = int(n)
	}
	entrySize := widths[0] + widths[1] + widths[2]
	if entrySize == 0 {
		return 0, errors.New("xref stream /W all zero")
	}

	type span struct{ first, count int }
	var spans []span
	if idx, ok := dict.Array("Index"); ok {
		if idx.Len()%2 != 0 {
			return 0, errors.New("xref stream /Index has odd length")
		}
		for i := 0; i < idx.Len(); i += 2 {
			a, _ := idx.At(i)
			b, _ := idx.At(i + 1)
			first, ok1 := object.AsInt(a)
			count, ok2 := object.AsInt(b)
			if !ok1 || !ok2 || first < 0 || count < 0 {
				return 0, errors.New("xref stream /Index malformed")
			}
			spans = append(spans, span{int(first), int(count)})
		}
	} else {
		spans = []span{{0, int(size)}}
	}

	decoded, err := r.cfg.Pipeline.DecodeStream(ctx, st, nil)
	if err != nil {
		return 0, fmt.Errorf("decode xref stream: %w", err)
	}

	pos := 0
	for _, sp := range spans {
		for num := sp.first; num < sp.first+sp.count; num++ {
			if pos+entrySize > len(decoded) {
				return 0, errors.New("xref stream data truncated")
			}
			row := decoded[pos : pos+entrySize]
			pos += entrySize

			// Field 1 defaults to type 1 when w1 is zero.
			typ := int64(1)
			if widths[0] > 0 {
				typ = beUint(row[:widths[0]])
			}
			f2 := beUint(row[widths[0] : widths[0]+widths[1]])
			f3 := beUint(row[widths[0]+widths[1]:])

			if _, claimed := t.entries[num]; claimed {
				continue
			}
			switch typ {
			case 0:
				t.entries[num] = Entry{Type: EntryFree, Gen: int(f3)}
			case 1:
				t.entries[num] = Entry{Type: EntryInFile, Offset: int64(f2), Gen: int(f3)}
			case 2:
				t.entries[num] = Entry{Type: EntryInObjectStream, StreamNum: int(f2), StreamIdx: int(f3)}
			default:
				// Readers treat unknown entry types as null; ignore.
			}
		}
	}

	if t.trailer == nil {
		t.trailer = dict
	}
	if prev, ok := dict.Int("Prev"); ok {
		return prev, nil
	}
	return -1, nil
}

func beUint(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// lineReader iterates CR-, LF-, or CRLF-terminated lines.
type lineReader struct {
	data []byte
	off  int
}

func newLineReader(data []byte) *lineReader { return &lineReader{data: data} }

func (l *lineReader) next() (string, bool) {
	if l.off >= len(l.data) {
		return "", false
	}
	start := l.off
	for l.off < len(l.data) && l.data[l.off] != '\r' && l.data[l.off] != '\n' {
		l.off++
	}
	line := string(l.data[start:l.off])
	if l.off < len(l.data) {
		if l.data[l.off] == '\r' {
			l.off++
			if l.off < len(l.data) && l.data[l.off] == '\n' {
				l.off++
			}
		} else {
			l.off++
		}
	}
	return line, true
}
