package xref

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"strconv"

	"leanpdf/object"
)

var objHeaderRe = regexp.MustCompile(`(?m)^[ \t]*(\d+)[ \t]+(\d+)[ \t]+obj\b`)

// Repair rebuilds a table by scanning the whole file for object
// headers, used when the xref chain itself is unusable. The newest
// definition of each object number wins, matching how readers treat
// appended revisions.
func Repair(ctx context.Context, data []byte) (*Table, error) {
	t := &Table{entries: make(map[int]Entry), revisions: 1}

	for _, m := range objHeaderRe.FindAllSubmatchIndex(data, -1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		num, err1 := strconv.Atoi(string(data[m[2]:m[3]]))
		gen, err2 := strconv.Atoi(string(data[m[4]:m[5]]))
		if err1 != nil || err2 != nil {
			continue
		}
		// Later matches overwrite earlier ones.
		t.entries[num] = Entry{Type: EntryInFile, Offset: int64(m[2]), Gen: gen}
	}
	if len(t.entries) == 0 {
		return nil, errors.New("no object headers found")
	}

	// Use the last trailer dictionary that parses; an appended
	// revision's trailer supersedes the original's.
	for idx := len(data); idx > 0; {
		rel := bytes.LastIndex(data[:idx], []byte("trailer"))
		if rel < 0 {
			break
		}
		if d, err := parseDictAt(data, int64(rel+len("trailer"))); err == nil && d.Len() > 0 {
			t.trailer = d
			break
		}
		idx = rel
	}
	if t.trailer == nil {
		// Files using xref streams have no trailer keyword; fall back
		// to the newest catalog-bearing xref stream dictionary.
		t.trailer = findXRefStreamDict(ctx, data, t)
	}
	if t.trailer == nil {
		return nil, errors.New("no trailer recovered")
	}
	return t, nil
}

func findXRefStreamDict(ctx context.Context, data []byte, t *Table) *object.Dict {
	nums := t.Objects()
	for i := len(nums) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return nil
		}
		e, _ := t.Lookup(nums[i])
		st, err := parseStreamObjectAt(data, e.Offset)
		if err != nil {
			continue
		}
		if typ, _ := st.Dict.Name("Type"); typ == "XRef" {
			return st.Dict
		}
	}
	return nil
}

// ReadAll drains an io.ReaderAt into memory in fixed chunks.
func ReadAll(r io.ReaderAt) []byte {
	var buf bytes.Buffer
	const chunk = int64(32 * 1024)
	tmp := make([]byte, chunk)
	for off := int64(0); ; off += chunk {
		n, err := r.ReadAt(tmp, off)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if err != nil || int64(n) < chunk {
			break
		}
	}
	return buf.Bytes()
}
