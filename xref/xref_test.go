package xref

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"leanpdf/filters"
)

// buildClassicPDF assembles a one-object file with a classic xref
// table and returns the bytes plus the object's offset.
func buildClassicPDF(val int, prev int64) ([]byte, int64, int64) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	objOff := int64(buf.Len())
	fmt.Fprintf(&buf, "1 0 obj\n<< /Val %d >>\nendobj\n", val)
	xrefOff := int64(buf.Len())
	buf.WriteString("xref\n0 2\n")
	buf.WriteString("0000000000 65535 f \n")
	fmt.Fprintf(&buf, "%010d 00000 n \n", objOff)
	buf.WriteString("trailer\n<< /Size 2 /Root 1 0 R")
	if prev >= 0 {
		fmt.Fprintf(&buf, " /Prev %d", prev)
	}
	buf.WriteString(" >>\nstartxref\n")
	fmt.Fprintf(&buf, "%d\n%%%%EOF\n", xrefOff)
	return buf.Bytes(), objOff, xrefOff
}

func TestResolveClassicTable(t *testing.T) {
	data, objOff, xrefOff := buildClassicPDF(7, -1)
	table, err := NewResolver(Config{}).Resolve(context.Background(), data)
	if err != nil {
		t.Fatal(err)
	}
	if table.StartXRef() != xrefOff {
		t.Errorf("StartXRef = %d, want %d", table.StartXRef(), xrefOff)
	}
	e, ok := table.Lookup(1)
	if !ok || e.Type != EntryInFile || e.Offset != objOff {
		t.Fatalf("entry 1 = %+v, ok=%v", e, ok)
	}
	if e, ok := table.Lookup(0); !ok || e.Type != EntryFree {
		t.Errorf("object 0 should be free, got %+v", e)
	}
	if root, ok := table.Trailer().Ref("Root"); !ok || root.Num != 1 {
		t.Errorf("trailer /Root = %v", root)
	}
	if got := table.Objects(); len(got) != 1 || got[0] != 1 {
		t.Errorf("Objects = %v", got)
	}
}

func TestResolvePrevChainNewestWins(t *testing.T) {
	base, _, baseXRef := buildClassicPDF(1, -1)

	var buf bytes.Buffer
	buf.Write(base)
	newObjOff := int64(buf.Len())
	buf.WriteString("1 0 obj\n<< /Val 2 >>\nendobj\n")
	newXRef := int64(buf.Len())
	buf.WriteString("xref\n1 1\n")
	fmt.Fprintf(&buf, "%010d 00000 n \n", newObjOff)
	fmt.Fprintf(&buf, "trailer\n<< /Size 2 /Root 1 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", baseXRef, newXRef)

	table, err := NewResolver(Config{}).Resolve(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	e, ok := table.Lookup(1)
	if !ok || e.Offset != newObjOff {
		t.Errorf("entry 1 offset = %d, want the appended revision at %d", e.Offset, newObjOff)
	}
	if table.Revisions() != 2 {
		t.Errorf("Revisions = %d, want 2", table.Revisions())
	}
}

func TestResolveXRefStream(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	catOff := int64(buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	xrefOff := int64(buf.Len())

	// W [1 2 1]: type byte, two offset bytes, gen byte.
	rows := []byte{
		0, 0, 0, 255,
		1, byte(catOff >> 8), byte(catOff), 0,
		1, byte(xrefOff >> 8), byte(xrefOff), 0,
	}
	enc, err := filters.FlateEncode(rows)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprintf(&buf, "2 0 obj\n<< /Type /XRef /Size 3 /W [1 2 1] /Root 1 0 R /Filter /FlateDecode /Length %d >>\nstream\n", len(enc))
	buf.Write(enc)
	fmt.Fprintf(&buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefOff)

	table, err := NewResolver(Config{}).Resolve(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	e, ok := table.Lookup(1)
	if !ok || e.Type != EntryInFile || e.Offset != catOff {
		t.Fatalf("entry 1 = %+v, ok=%v", e, ok)
	}
	if root, ok := table.Trailer().Ref("Root"); !ok || root.Num != 1 {
		t.Errorf("trailer /Root = %v", root)
	}
}

func TestResolveXRefStreamObjectStreamEntries(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	xrefOff := int64(buf.Len())

	// Object 3 lives at index 1 of object stream 4.
	rows := []byte{
		0, 0, 0, 255, // 0: free
		2, 0, 4, 1, // 3 -> stream 4, index 1
	}
	enc, err := filters.FlateEncode(rows)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprintf(&buf, "5 0 obj\n<< /Type /XRef /Size 6 /W [1 2 1] /Index [0 1 3 1] /Root 1 0 R /Filter /FlateDecode /Length %d >>\nstream\n", len(enc))
	buf.Write(enc)
	fmt.Fprintf(&buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefOff)

	table, err := NewResolver(Config{}).Resolve(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	e, ok := table.Lookup(3)
	if !ok || e.Type != EntryInObjectStream || e.StreamNum != 4 || e.StreamIdx != 1 {
		t.Fatalf("entry 3 = %+v, ok=%v", e, ok)
	}
}

func TestResolveCycleFails(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	xrefOff := int64(buf.Len())
	fmt.Fprintf(&buf, "xref\n0 1\n0000000000 65535 f \ntrailer\n<< /Size 1 /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", xrefOff, xrefOff)
	if _, err := NewResolver(Config{}).Resolve(context.Background(), buf.Bytes()); err == nil {
		t.Error("self-referential Prev chain must fail")
	}
}

func TestFindStartXRefErrors(t *testing.T) {
	if _, err := FindStartXRef([]byte("%PDF-1.4 no marker here")); err == nil {
		t.Error("missing startxref must fail")
	}
	if _, err := FindStartXRef([]byte("startxref\n999999\n%%EOF")); err == nil {
		t.Error("out-of-range offset must fail")
	}
}

func TestRepairRecoversObjects(t *testing.T) {
	data, objOff, _ := buildClassicPDF(3, -1)
	// Corrupt the startxref value.
	broken := bytes.Replace(data, []byte("startxref"), []byte("starfishxx"), 1)

	table, err := Repair(context.Background(), broken)
	if err != nil {
		t.Fatal(err)
	}
	e, ok := table.Lookup(1)
	if !ok || e.Offset != objOff {
		t.Fatalf("repaired entry 1 = %+v, ok=%v", e, ok)
	}
	if root, ok := table.Trailer().Ref("Root"); !ok || root.Num != 1 {
		t.Errorf("repaired trailer /Root = %v", root)
	}
}

func TestReadAll(t *testing.T) {
	payload := bytes.Repeat([]byte("abc"), 40000)
	got := ReadAll(bytes.NewReader(payload))
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadAll length = %d, want %d", len(got), len(payload))
	}
}
