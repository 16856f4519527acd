// Package writer serializes a document store back to PDF bytes, either
// as a complete rewrite or as an incremental section appended to the
// original file.
package writer

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"leanpdf/object"
	"leanpdf/observability"
)

// Config controls serialization.
type Config struct {
	// Version is the header version for full rewrites, "1.7" when empty.
	Version string
	Logger  observability.Logger
}

type Writer struct {
	store *object.Store
	cfg   Config
	log   observability.Logger
}

func New(store *object.Store, cfg Config) *Writer {
	if cfg.Version == "" {
		cfg.Version = "1.7"
	}
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Writer{store: store, cfg: cfg, log: log}
}

// WriteFull serializes the entire store as a standalone file: header,
// every live object, one classic xref section, trailer. Output is
// byte-identical across runs for an unchanged store.
func (w *Writer) WriteFull() ([]byte, error) {
	root, ok := w.store.Trailer().Get("Root")
	if !ok {
		return nil, fmt.Errorf("document has no /Root to write")
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n", w.cfg.Version)
	// Binary marker comment keeps transfer tools from treating the
	// file as text.
	buf.Write([]byte{'%', 0xE2, 0xE3, 0xCF, 0xD3, '\n'})

	offsets := make(map[int]xrefEntry)
	for _, ref := range w.store.Refs() {
		obj, _ := w.store.Get(ref)
		if obj == nil {
			continue
		}
		offsets[ref.Num] = xrefEntry{off: int64(buf.Len()), gen: ref.Gen}
		fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
		buf.Write(serialize(obj))
		buf.WriteString("\nendobj\n")
	}

	size := w.store.MaxNum() + 1
	trailer := object.NewDict()
	trailer.Set("Size", object.Integer(size))
	trailer.Set("Root", root)
	if info, ok := w.store.Trailer().Get("Info"); ok {
		trailer.Set("Info", info)
	}
	trailer.Set("ID", w.fileID(offsets))

	xrefOff := int64(buf.Len())
	writeFullXref(&buf, offsets, size)
	writeTrailer(&buf, trailer, xrefOff)

	w.log.Debug("wrote full document",
		observability.Int("objects", len(offsets)),
		observability.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

// AppendIncremental returns original plus an update section holding the
// dirty objects, a new xref listing only them, and a trailer chaining
// to the previous one via /Prev. A clean store returns original as-is.
func (w *Writer) AppendIncremental(original []byte) ([]byte, error) {
	dirty := w.store.DirtyRefs()
	if len(dirty) == 0 {
		return original, nil
	}
	root, ok := w.store.Trailer().Get("Root")
	if !ok {
		return nil, fmt.Errorf("document has no /Root to write")
	}
	prev := lastStartXref(original)
	if prev <= 0 {
		return nil, fmt.Errorf("original file has no startxref to chain from")
	}

	var buf bytes.Buffer
	buf.Write(original)
	if len(original) > 0 && original[len(original)-1] != '\n' {
		buf.WriteByte('\n')
	}

	offsets := make(map[int]xrefEntry, len(dirty))
	for _, ref := range dirty {
		obj, ok := w.store.Get(ref)
		if !ok {
			continue
		}
		offsets[ref.Num] = xrefEntry{off: int64(buf.Len()), gen: ref.Gen}
		fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
		buf.Write(serialize(obj))
		buf.WriteString("\nendobj\n")
	}

	trailer := object.NewDict()
	trailer.Set("Size", object.Integer(w.store.MaxNum()+1))
	trailer.Set("Root", root)
	if info, ok := w.store.Trailer().Get("Info"); ok {
		trailer.Set("Info", info)
	}
	if id, ok := w.store.Trailer().Get("ID"); ok {
		trailer.Set("ID", id)
	}
	trailer.Set("Prev", object.Integer(prev))

	xrefOff := int64(buf.Len())
	writeIncrementalXref(&buf, offsets)
	writeTrailer(&buf, trailer, xrefOff)

	w.log.Debug("appended incremental section",
		observability.Int("objects", len(offsets)),
		observability.Int64("prev", prev))
	return buf.Bytes(), nil
}

// xrefEntry pairs an object's byte offset with the generation the xref
// row must advertise, which has to match the object header exactly.
type xrefEntry struct {
	off int64
	gen int
}

func writeFullXref(buf *bytes.Buffer, offsets map[int]xrefEntry, size int) {
	buf.WriteString("xref\n")
	fmt.Fprintf(buf, "0 %d\n", size)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num < size; num++ {
		if e, ok := offsets[num]; ok {
			fmt.Fprintf(buf, "%010d %05d n \n", e.off, e.gen)
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}
}

func writeIncrementalXref(buf *bytes.Buffer, offsets map[int]xrefEntry) {
	nums := make([]int, 0, len(offsets))
	for n := range offsets {
		nums = append(nums, n)
	}
	buf.WriteString("xref\n")
	buf.WriteString("0 1\n")
	buf.WriteString("0000000000 65535 f \n")
	for _, run := range groupConsecutive(nums) {
		fmt.Fprintf(buf, "%d %d\n", run[0], len(run))
		for _, n := range run {
			fmt.Fprintf(buf, "%010d %05d n \n", offsets[n].off, offsets[n].gen)
		}
	}
}

func writeTrailer(buf *bytes.Buffer, trailer *object.Dict, xrefOff int64) {
	buf.WriteString("trailer\n")
	buf.Write(serialize(trailer))
	fmt.Fprintf(buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOff)
}

// fileID derives a deterministic /ID pair from the object layout, the
// way reproducible-output writers seed theirs.
func (w *Writer) fileID(offsets map[int]xrefEntry) *object.Array {
	h := sha256.New()
	fmt.Fprintf(h, "%s:%d", w.cfg.Version, len(offsets))
	for _, ref := range w.store.Refs() {
		fmt.Fprintf(h, ":%d@%d", ref.Num, offsets[ref.Num].off)
	}
	sum := h.Sum(nil)[:16]
	return object.NewArray(
		object.String{Data: sum, Hex: true},
		object.String{Data: sum, Hex: true},
	)
}

var startxrefRE = regexp.MustCompile(`startxref\s+(\d+)`)

// lastStartXref finds the offset recorded by the final startxref in
// the file, the entry point the new /Prev must chain to.
func lastStartXref(data []byte) int64 {
	matches := startxrefRE.FindAllSubmatch(data, -1)
	if len(matches) == 0 {
		return 0
	}
	off, err := strconv.ParseInt(string(matches[len(matches)-1][1]), 10, 64)
	if err != nil {
		return 0
	}
	return off
}

// SaveFile writes data through a temp file in the target directory and
// renames it into place, so readers never see a half-written file.
func SaveFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
