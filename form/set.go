package form

import (
	"bytes"
	"fmt"

	"leanpdf/filters"
	"leanpdf/fonts"
	"leanpdf/object"
	"leanpdf/observability"
)

// Set updates the first widget matching name in document order and
// reports whether a match existed at all, so a typo in the name is
// visible instead of a silent no-op. Text and choice fields take any
// string; button fields only accept one of their export states.
func (m *Manager) Set(name, value string) (bool, error) {
	matches := m.index[name]
	if len(matches) == 0 {
		return false, nil
	}
	field := matches[0]

	switch field.Type {
	case TypeCheckbox, TypeRadio:
		if err := m.setButton(field, value); err != nil {
			return true, err
		}
	case TypeSignature:
		return true, fmt.Errorf("%w: signature fields cannot be set", ErrInvalidValue)
	default:
		m.setText(field, value)
	}
	field.Value = value
	return true, nil
}

func (m *Manager) setText(field *Field, value string) {
	field.valueHolder.Set("V", object.String{Data: []byte(value)})
	m.markFieldDirty(field)
	m.regenerateAppearance(field, value)
}

// setButton validates value against the field's export states, then
// moves both the value and the active appearance state. A radio
// group's accepted states are the union across its widgets, and every
// widget's /AS follows the new value: on where it matches, Off
// elsewhere.
func (m *Manager) setButton(field *Field, value string) error {
	group := []*Field{field}
	if field.Type == TypeRadio {
		group = m.index[field.Name]
	}
	valid := false
	for _, w := range group {
		for _, s := range w.exportStates {
			if s == value {
				valid = true
			}
		}
	}
	if !valid {
		return fmt.Errorf("%w: %q is not an export state of %q",
			ErrInvalidValue, value, field.Name)
	}

	field.valueHolder.Set("V", object.Name(value))
	for _, w := range group {
		state := "Off"
		for _, s := range w.exportStates {
			if s == value {
				state = value
				break
			}
		}
		w.dict.Set("AS", object.Name(state))
		w.Value = value
		m.markFieldDirty(w)
	}
	return nil
}

func (m *Manager) markFieldDirty(field *Field) {
	if field.Ref != (object.Ref{}) {
		m.store.MarkDirty(field.Ref)
	}
	if field.valueHolder != field.dict {
		if ref, ok := m.store.RefFor(field.valueHolder); ok {
			m.store.MarkDirty(ref)
		}
	}
}

// regenerateAppearance rebuilds the widget's /AP /N form XObject so a
// render right after the update shows the new value. The stream uses
// the marked-content pattern viewers expect for text fields.
func (m *Manager) regenerateAppearance(field *Field, value string) {
	w := field.Rect.Width()
	h := field.Rect.Height()
	if w <= 0 || h <= 0 {
		return
	}
	size := 12.0
	if size > h-4 && h > 4 {
		size = h - 4
	}

	var buf bytes.Buffer
	buf.WriteString("/Tx BMC\nq\n")
	fmt.Fprintf(&buf, "1 1 %.2f %.2f re W n\n", w-2, h-2)
	fmt.Fprintf(&buf, "BT\n/%s %g Tf\n0 g\n", fonts.BaseFontName, size)
	fmt.Fprintf(&buf, "2 %.2f Td\n", (h-size)/2+1)
	fmt.Fprintf(&buf, "(%s) Tj\n", fonts.EscapeText(value))
	buf.WriteString("ET\nQ\nEMC\n")

	encoded, err := filters.FlateEncode(buf.Bytes())
	if err != nil {
		m.log.Warn("appearance encode failed", observability.Error("cause", err))
		return
	}

	dict := object.NewDict()
	dict.Set("Type", object.Name("XObject"))
	dict.Set("Subtype", object.Name("Form"))
	dict.Set("BBox", object.RectArray(0, 0, w, h))
	dict.Set("Filter", object.Name("FlateDecode"))
	dict.Set("Resources", appearanceResources())
	st := object.NewStream(dict, encoded)

	// Reuse the existing /N object when there is one so the update
	// stays a small incremental diff.
	if ap, ok := m.store.ResolveDict(field.dict, "AP"); ok {
		if ref, ok := ap.Ref("N"); ok {
			m.store.Put(ref, st)
			return
		}
	}
	ref := m.store.Allocate(st)
	ap := object.NewDict()
	ap.Set("N", object.Reference{Ref: ref})
	field.dict.Set("AP", ap)
	m.markFieldDirty(field)
}

func appearanceResources() *object.Dict {
	helv := object.NewDict()
	helv.Set("Type", object.Name("Font"))
	helv.Set("Subtype", object.Name("Type1"))
	helv.Set("BaseFont", object.Name(fonts.BaseFontName))
	helv.Set("Encoding", object.Name("WinAnsiEncoding"))
	fontDict := object.NewDict()
	fontDict.Set(object.Name(fonts.BaseFontName), helv)
	res := object.NewDict()
	res.Set("Font", fontDict)
	return res
}
