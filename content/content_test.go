package content

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"leanpdf/filters"
	"leanpdf/object"
	"leanpdf/pagetree"
)

func TestParseOperators(t *testing.T) {
	src := []byte("q 1 0 0 1 50 700 cm BT /F1 12 Tf (Hello \\(there\\)) Tj ET Q 0.5 w 10 20 m 30 40 l S")
	ops, err := Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, op := range ops {
		names = append(names, op.Operator)
	}
	want := "q cm BT Tf Tj ET Q w m l S"
	if got := strings.Join(names, " "); got != want {
		t.Fatalf("operators = %q, want %q", got, want)
	}

	cm := ops[1]
	if len(cm.Operands) != 6 {
		t.Errorf("cm carries %d operands, want 6", len(cm.Operands))
	}
	tj := ops[4]
	str, ok := tj.Operands[0].(object.String)
	if !ok || string(str.Data) != "Hello (there)" {
		t.Errorf("Tj operand = %v", tj.Operands)
	}
	tf := ops[3]
	if name, ok := tf.Operands[0].(object.Name); !ok || name != "F1" {
		t.Errorf("Tf font operand = %v", tf.Operands[0])
	}
}

func TestParseTJArrayAndDict(t *testing.T) {
	ops, err := Parse([]byte("[(A) -120 (B)] TJ /MC <</MCID 3>> BDC EMC"))
	if err != nil {
		t.Fatal(err)
	}
	if ops[0].Operator != "TJ" {
		t.Fatalf("first operator = %q", ops[0].Operator)
	}
	arr, ok := ops[0].Operands[0].(*object.Array)
	if !ok || len(arr.Items) != 3 {
		t.Fatalf("TJ operand = %#v", ops[0].Operands)
	}
	if ops[1].Operator != "BDC" || len(ops[1].Operands) != 2 {
		t.Errorf("BDC = %+v", ops[1])
	}
	if _, ok := ops[1].Operands[1].(*object.Dict); !ok {
		t.Error("BDC property list should parse as a dictionary")
	}
}

// pageFixture builds a store holding one page whose content stream is
// flate-compressed.
func pageFixture(t *testing.T, body string) (*object.Store, *pagetree.Page) {
	t.Helper()
	store := object.NewStore()

	encoded, err := filters.FlateEncode([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	dict := object.NewDict()
	dict.Set("Filter", object.Name("FlateDecode"))
	st := object.NewStream(dict, encoded)
	store.Load(object.Ref{Num: 4}, st)

	pageDict := object.NewDict()
	pageDict.Set("Type", object.Name("Page"))
	pageDict.Set("MediaBox", object.RectArray(0, 0, 612, 792))
	pageDict.Set("Contents", object.NewRef(4, 0))
	store.Load(object.Ref{Num: 3}, pageDict)

	page := &pagetree.Page{
		Index:    0,
		Ref:      object.Ref{Num: 3},
		Dict:     pageDict,
		MediaBox: pagetree.Rect{URX: 612, URY: 792},
		Contents: object.NewRef(4, 0),
	}
	return store, page
}

func TestDecodedConcatenatesStreams(t *testing.T) {
	store := object.NewStore()
	a := object.NewStream(nil, []byte("q"))
	b := object.NewStream(nil, []byte("Q"))
	store.Load(object.Ref{Num: 10}, a)
	store.Load(object.Ref{Num: 11}, b)
	contents := object.NewArray(object.NewRef(10, 0), object.NewRef(11, 0))

	got, err := Decoded(context.Background(), store, contents, filters.NewDefaultPipeline(filters.Limits{}))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "q\nQ" {
		t.Errorf("Decoded = %q, want q\\nQ", got)
	}
}

func TestAppendOperatorsRewritesInPlace(t *testing.T) {
	store, page := pageFixture(t, "q Q")
	pipeline := filters.NewDefaultPipeline(filters.Limits{})
	c := NewCompositor(store, pipeline)

	if err := c.AppendOperators(context.Background(), page, []byte("0 0 100 100 re f")); err != nil {
		t.Fatal(err)
	}

	decoded, err := Decoded(context.Background(), store, page.Contents, pipeline)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != "q Q\n0 0 100 100 re f" {
		t.Errorf("content after append = %q", decoded)
	}
	if !store.IsDirty(object.Ref{Num: 4}) {
		t.Error("content object should be dirty")
	}
	if store.IsDirty(object.Ref{Num: 3}) {
		t.Error("page dict was not touched and should stay clean")
	}
}

func TestInsertTextAddsFontResource(t *testing.T) {
	store, page := pageFixture(t, "q Q")
	c := NewCompositor(store, filters.NewDefaultPipeline(filters.Limits{}))

	if err := c.InsertText(context.Background(), page, 100, 200, "Hello (PDF)", 0); err != nil {
		t.Fatal(err)
	}

	decoded, err := Decoded(context.Background(), store, page.Contents, filters.NewDefaultPipeline(filters.Limits{}))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"/Helv 12 Tf", "1 0 0 1 100 200 Tm", "(Hello \\(PDF\\)) Tj"} {
		if !bytes.Contains(decoded, []byte(want)) {
			t.Errorf("content %q missing %q", decoded, want)
		}
	}

	res, ok := store.ResolveDict(page.Dict, "Resources")
	if !ok {
		t.Fatal("page gained no Resources")
	}
	fontDict, ok := store.ResolveDict(res, "Font")
	if !ok {
		t.Fatal("Resources gained no /Font")
	}
	helv, ok := store.ResolveDict(fontDict, FontResourceName)
	if !ok {
		t.Fatal("no /Helv entry")
	}
	if base, _ := helv.Name("BaseFont"); base != "Helvetica" {
		t.Errorf("BaseFont = %v", base)
	}
	if !store.IsDirty(page.Ref) {
		t.Error("page dict should be dirty after gaining Resources")
	}
}

func TestInsertTextDoesNotMutateInheritedResources(t *testing.T) {
	store, page := pageFixture(t, "q Q")
	inherited := object.NewDict()
	procset := object.NewArray(object.Name("PDF"))
	inherited.Set("ProcSet", procset)
	page.Resources = inherited // inherited from an ancestor, page dict has no entry

	c := NewCompositor(store, filters.NewDefaultPipeline(filters.Limits{}))
	if err := c.InsertText(context.Background(), page, 10, 10, "x", 9); err != nil {
		t.Fatal(err)
	}

	if _, ok := inherited.Get("Font"); ok {
		t.Error("ancestor resource dictionary was mutated")
	}
	res, ok := store.ResolveDict(page.Dict, "Resources")
	if !ok {
		t.Fatal("page should own a Resources copy now")
	}
	if _, ok := res.Get("ProcSet"); !ok {
		t.Error("inherited entries should be carried into the copy")
	}
}
