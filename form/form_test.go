package form

import (
	"errors"
	"testing"

	"leanpdf/object"
	"leanpdf/pagetree"
)

// fixture builds a one-page document carrying a text field, a
// checkbox, a two-widget radio group, and a hidden widget that must
// never be indexed.
func fixture(t *testing.T) (*object.Store, *pagetree.Tree) {
	t.Helper()
	store := object.NewStore()

	cat := object.NewDict()
	cat.Set("Type", object.Name("Catalog"))
	cat.Set("Pages", object.NewRef(2, 0))
	store.Load(object.Ref{Num: 1}, cat)

	pages := object.NewDict()
	pages.Set("Type", object.Name("Pages"))
	pages.Set("Kids", object.NewArray(object.NewRef(3, 0)))
	pages.Set("Count", object.Integer(1))
	pages.Set("MediaBox", object.RectArray(0, 0, 612, 792))
	store.Load(object.Ref{Num: 2}, pages)

	page := object.NewDict()
	page.Set("Type", object.Name("Page"))
	page.Set("Annots", object.NewArray(
		object.NewRef(10, 0), object.NewRef(11, 0),
		object.NewRef(13, 0), object.NewRef(14, 0),
		object.NewRef(15, 0)))
	store.Load(object.Ref{Num: 3}, page)

	text := object.NewDict()
	text.Set("Subtype", object.Name("Widget"))
	text.Set("FT", object.Name("Tx"))
	text.Set("T", object.String{Data: []byte("applicant")})
	text.Set("V", object.String{Data: []byte("old")})
	text.Set("Rect", object.RectArray(50, 700, 250, 720))
	store.Load(object.Ref{Num: 10}, text)

	states := object.NewDict()
	states.Set("Yes", object.NewDict())
	states.Set("Off", object.NewDict())
	ap := object.NewDict()
	ap.Set("N", states)
	check := object.NewDict()
	check.Set("Subtype", object.Name("Widget"))
	check.Set("FT", object.Name("Btn"))
	check.Set("T", object.String{Data: []byte("agree")})
	check.Set("V", object.Name("Off"))
	check.Set("AS", object.Name("Off"))
	check.Set("AP", ap)
	check.Set("Rect", object.RectArray(50, 650, 65, 665))
	store.Load(object.Ref{Num: 11}, check)

	group := object.NewDict()
	group.Set("FT", object.Name("Btn"))
	group.Set("T", object.String{Data: []byte("color")})
	group.Set("Ff", object.Integer(flagRadio))
	group.Set("Kids", object.NewArray(object.NewRef(13, 0), object.NewRef(14, 0)))
	store.Load(object.Ref{Num: 12}, group)

	for i, state := range []string{"Red", "Blue"} {
		st := object.NewDict()
		st.Set(object.Name(state), object.NewDict())
		st.Set("Off", object.NewDict())
		wap := object.NewDict()
		wap.Set("N", st)
		w := object.NewDict()
		w.Set("Subtype", object.Name("Widget"))
		w.Set("Parent", object.NewRef(12, 0))
		w.Set("AS", object.Name("Off"))
		w.Set("AP", wap)
		w.Set("Rect", object.RectArray(float64(50+20*i), 600, float64(65+20*i), 615))
		store.Load(object.Ref{Num: 13 + i}, w)
	}

	hidden := object.NewDict()
	hidden.Set("Subtype", object.Name("Widget"))
	hidden.Set("FT", object.Name("Tx"))
	hidden.Set("T", object.String{Data: []byte("secret")})
	hidden.Set("F", object.Integer(flagHidden))
	store.Load(object.Ref{Num: 15}, hidden)

	trailer := object.NewDict()
	trailer.Set("Root", object.NewRef(1, 0))
	store.SetTrailer(trailer)
	store.ClearDirty()

	tree, err := pagetree.Load(store, nil)
	if err != nil {
		t.Fatal(err)
	}
	return store, tree
}

func TestListFields(t *testing.T) {
	store, tree := fixture(t)
	m := NewManager(store, tree, nil)

	got := m.List()
	if len(got) != 4 {
		t.Fatalf("List returned %d fields, want 4: %+v", len(got), got)
	}
	if got[0].Name != "applicant" || got[0].Type != TypeText || got[0].Value != "old" {
		t.Errorf("field 0 = %+v", got[0])
	}
	if got[1].Name != "agree" || got[1].Type != TypeCheckbox || got[1].Value != "Off" {
		t.Errorf("field 1 = %+v", got[1])
	}
	if got[2].Name != "color" || got[2].Type != TypeRadio {
		t.Errorf("field 2 = %+v", got[2])
	}
	if got[3].Name != "color" {
		t.Errorf("field 3 = %+v", got[3])
	}
	for _, f := range got {
		if f.Name == "secret" {
			t.Error("hidden widget should not be listed")
		}
	}
}

func TestEmptyDocumentLists(t *testing.T) {
	store := object.NewStore()
	cat := object.NewDict()
	cat.Set("Type", object.Name("Catalog"))
	cat.Set("Pages", object.NewRef(2, 0))
	store.Load(object.Ref{Num: 1}, cat)
	pages := object.NewDict()
	pages.Set("Type", object.Name("Pages"))
	pages.Set("Kids", object.NewArray())
	pages.Set("Count", object.Integer(0))
	store.Load(object.Ref{Num: 2}, pages)
	trailer := object.NewDict()
	trailer.Set("Root", object.NewRef(1, 0))
	store.SetTrailer(trailer)

	tree, err := pagetree.Load(store, nil)
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(store, tree, nil)
	if got := m.List(); len(got) != 0 {
		t.Errorf("List = %+v, want empty", got)
	}
}

func TestSetUnknownName(t *testing.T) {
	store, tree := fixture(t)
	m := NewManager(store, tree, nil)
	found, err := m.Set("no-such-field", "x")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("found should be false for an unknown name")
	}
	if len(store.DirtyRefs()) != 0 {
		t.Error("nothing should be dirty after a miss")
	}
}

func TestSetTextField(t *testing.T) {
	store, tree := fixture(t)
	m := NewManager(store, tree, nil)

	found, err := m.Set("applicant", "Jane Doe")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("field should be found")
	}

	widget, _ := store.Get(object.Ref{Num: 10})
	v, ok := widget.(*object.Dict).StringBytes("V")
	if !ok || string(v) != "Jane Doe" {
		t.Errorf("/V = %q", v)
	}
	if !store.IsDirty(object.Ref{Num: 10}) {
		t.Error("widget should be dirty")
	}

	// The regenerated appearance must exist and show the value.
	ap, ok := store.ResolveDict(widget.(*object.Dict), "AP")
	if !ok {
		t.Fatal("no /AP after update")
	}
	nref, ok := ap.Ref("N")
	if !ok {
		t.Fatal("/AP has no /N reference")
	}
	if _, ok := store.Resolve(object.Reference{Ref: nref}).(*object.Stream); !ok {
		t.Error("/N is not a stream")
	}

	if m.List()[0].Value != "Jane Doe" {
		t.Error("List should reflect the new value")
	}
}

func TestSetCheckbox(t *testing.T) {
	store, tree := fixture(t)
	m := NewManager(store, tree, nil)

	if _, err := m.Set("agree", "Maybe"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("invalid export state should fail, got %v", err)
	}
	widget, _ := store.Get(object.Ref{Num: 11})
	if v, _ := widget.(*object.Dict).Name("V"); v != "Off" {
		t.Errorf("prior value should be retained, /V = %v", v)
	}

	found, err := m.Set("agree", "Yes")
	if err != nil || !found {
		t.Fatal(found, err)
	}
	d := widget.(*object.Dict)
	if v, _ := d.Name("V"); v != "Yes" {
		t.Errorf("/V = %v", v)
	}
	if as, _ := d.Name("AS"); as != "Yes" {
		t.Errorf("/AS = %v", as)
	}
}

func TestSetRadioGroup(t *testing.T) {
	store, tree := fixture(t)
	m := NewManager(store, tree, nil)

	if len(m.Lookup("color")) != 2 {
		t.Fatalf("Lookup(color) = %d widgets, want 2", len(m.Lookup("color")))
	}

	found, err := m.Set("color", "Blue")
	if err != nil || !found {
		t.Fatal(found, err)
	}

	parent, _ := store.Get(object.Ref{Num: 12})
	if v, _ := parent.(*object.Dict).Name("V"); v != "Blue" {
		t.Errorf("group /V = %v", v)
	}
	w1, _ := store.Get(object.Ref{Num: 13})
	if as, _ := w1.(*object.Dict).Name("AS"); as != "Off" {
		t.Errorf("Red widget /AS = %v, want Off", as)
	}
	w2, _ := store.Get(object.Ref{Num: 14})
	if as, _ := w2.(*object.Dict).Name("AS"); as != "Blue" {
		t.Errorf("Blue widget /AS = %v", as)
	}
	if !store.IsDirty(object.Ref{Num: 12}) {
		t.Error("group object should be dirty")
	}
}
