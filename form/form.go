// Package form enumerates AcroForm widget annotations and mutates
// field values, keeping appearance streams in step so renders reflect
// the new value.
package form

import (
	"errors"
	"sort"
	"strings"

	"leanpdf/object"
	"leanpdf/observability"
	"leanpdf/pagetree"
)

// ErrInvalidValue reports a value outside a button field's export
// states. The prior value is retained.
var ErrInvalidValue = errors.New("invalid field value")

type FieldType string

const (
	TypeText      FieldType = "text"
	TypeCheckbox  FieldType = "checkbox"
	TypeRadio     FieldType = "radio"
	TypePush      FieldType = "pushbutton"
	TypeChoice    FieldType = "choice"
	TypeSignature FieldType = "signature"
	TypeUnknown   FieldType = "unknown"
)

const (
	flagHidden = 1 << 1  // annotation /F bit 2
	flagRadio  = 1 << 15 // field /Ff bit 16
	flagPush   = 1 << 16 // field /Ff bit 17
	flagCombo  = 1 << 17 // field /Ff bit 18
	maxParents = 32
)

// Field is one widget annotation carrying (possibly inherited) field
// semantics.
type Field struct {
	Name      string // fully qualified, dot-joined
	Type      FieldType
	Value     string
	PageIndex int
	Ref       object.Ref // the widget annotation object
	Rect      pagetree.Rect

	dict         *object.Dict
	valueHolder  *object.Dict // nearest dict carrying /T for this widget
	exportStates []string
}

// ExportStates lists the values a button field accepts, Off included.
func (f *Field) ExportStates() []string { return f.exportStates }

// Manager indexes widgets by fully qualified name in document order:
// page order ascending, annotation order within the page.
type Manager struct {
	store  *object.Store
	fields []*Field
	index  map[string][]*Field
	log    observability.Logger
}

// NewManager walks every page's /Annots list. Unnamed and hidden
// widgets are not indexed; a page with a broken annotation list is
// logged and contributes nothing.
func NewManager(store *object.Store, tree *pagetree.Tree, log observability.Logger) *Manager {
	if log == nil {
		log = observability.NopLogger{}
	}
	m := &Manager{store: store, index: map[string][]*Field{}, log: log}
	for _, page := range tree.Pages() {
		m.collectPage(page)
	}
	return m
}

func (m *Manager) collectPage(page *pagetree.Page) {
	annots, ok := m.store.ResolveArray(page.Dict, "Annots")
	if !ok {
		return
	}
	for _, item := range annots.Items {
		ref, isRef := item.(object.Reference)
		dict, ok := m.store.Resolve(item).(*object.Dict)
		if !ok {
			m.log.Warn("skipping non-dictionary annotation",
				observability.Int("page", page.Index))
			continue
		}
		if sub, _ := dict.Name("Subtype"); sub != "Widget" {
			continue
		}
		if f, _ := m.store.ResolveInt(dict, "F"); f&flagHidden != 0 {
			continue
		}
		field := m.buildField(dict, page)
		if field == nil {
			continue
		}
		if isRef {
			field.Ref = ref.Ref
		}
		m.fields = append(m.fields, field)
		m.index[field.Name] = append(m.index[field.Name], field)
	}
}

// buildField resolves the widget's inherited field attributes by
// walking the /Parent chain. Widgets with no /T anywhere are skipped.
func (m *Manager) buildField(dict *object.Dict, page *pagetree.Page) *Field {
	var parts []string
	var ft object.Name
	var valueObj object.Object
	var valueHolder *object.Dict

	node := dict
	for depth := 0; node != nil && depth < maxParents; depth++ {
		if t, ok := m.store.ResolveString(node, "T"); ok && len(t) > 0 {
			parts = append(parts, string(t))
			// Nearest named ancestor holds the value for this widget.
			if valueHolder == nil {
				valueHolder = node
			}
		}
		if ft == "" {
			ft, _ = node.Name("FT")
		}
		if valueObj == nil {
			if v, ok := node.Get("V"); ok {
				valueObj = m.store.Resolve(v)
			}
		}
		parent, ok := m.store.ResolveDict(node, "Parent")
		if !ok {
			break
		}
		node = parent
	}
	if len(parts) == 0 || valueHolder == nil {
		return nil
	}
	// Parts were collected leaf-first.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}

	flags, _ := m.store.ResolveInt(dict, "Ff")
	if flags == 0 {
		flags, _ = m.store.ResolveInt(valueHolder, "Ff")
	}

	field := &Field{
		Name:        strings.Join(parts, "."),
		Type:        fieldType(ft, flags),
		Value:       valueString(valueObj),
		PageIndex:   page.Index,
		dict:        dict,
		valueHolder: valueHolder,
	}
	if r, ok := rectOf(m.store, dict); ok {
		field.Rect = r
	}
	if field.Type == TypeCheckbox || field.Type == TypeRadio {
		field.exportStates = m.exportStates(dict)
	}
	return field
}

func fieldType(ft object.Name, flags int64) FieldType {
	switch ft {
	case "Tx":
		return TypeText
	case "Btn":
		switch {
		case flags&flagPush != 0:
			return TypePush
		case flags&flagRadio != 0:
			return TypeRadio
		default:
			return TypeCheckbox
		}
	case "Ch":
		return TypeChoice
	case "Sig":
		return TypeSignature
	default:
		return TypeUnknown
	}
}

func valueString(v object.Object) string {
	switch t := v.(type) {
	case object.String:
		return string(t.Data)
	case object.Name:
		return string(t)
	default:
		return ""
	}
}

// exportStates reads the /AP /N state names of a button widget. Off is
// always accepted even when the widget carries no appearance at all.
func (m *Manager) exportStates(dict *object.Dict) []string {
	states := []string{"Off"}
	ap, ok := m.store.ResolveDict(dict, "AP")
	if !ok {
		return states
	}
	n, ok := m.store.ResolveDict(ap, "N")
	if !ok {
		return states
	}
	for _, k := range n.SortedKeys() {
		if k != "Off" {
			states = append(states, string(k))
		}
	}
	sort.Strings(states)
	return states
}

func rectOf(store *object.Store, dict *object.Dict) (pagetree.Rect, bool) {
	arr, ok := store.ResolveArray(dict, "Rect")
	if !ok {
		return pagetree.Rect{}, false
	}
	nums := arr.Floats()
	if len(nums) < 4 {
		return pagetree.Rect{}, false
	}
	r := pagetree.Rect{LLX: nums[0], LLY: nums[1], URX: nums[2], URY: nums[3]}
	if r.LLX > r.URX {
		r.LLX, r.URX = r.URX, r.LLX
	}
	if r.LLY > r.URY {
		r.LLY, r.URY = r.URY, r.LLY
	}
	return r, true
}

// Info is the listing shape handed to callers.
type Info struct {
	Name  string
	Value string
	Type  FieldType
}

// List returns every indexed widget in document order. A document
// without forms yields an empty slice.
func (m *Manager) List() []Info {
	out := make([]Info, 0, len(m.fields))
	for _, f := range m.fields {
		out = append(out, Info{Name: f.Name, Value: f.Value, Type: f.Type})
	}
	return out
}

// Lookup returns all widgets sharing the fully qualified name, in
// document order. Duplicate names across pages are a fact of life in
// scanned-in forms, so callers see every match.
func (m *Manager) Lookup(name string) []*Field {
	return m.index[name]
}

// Len returns the number of indexed widgets.
func (m *Manager) Len() int { return len(m.fields) }
