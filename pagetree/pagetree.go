// Package pagetree flattens the document page tree into an ordered
// page list, resolving the attributes a page inherits from its
// ancestor nodes.
package pagetree

import (
	"errors"
	"fmt"

	"leanpdf/object"
	"leanpdf/observability"
)

// ErrCycle reports a page tree node reachable from itself.
var ErrCycle = errors.New("page tree cycle")

// Rect is a PDF rectangle normalized so LLX <= URX and LLY <= URY.
type Rect struct {
	LLX, LLY, URX, URY float64
}

func (r Rect) Width() float64  { return r.URX - r.LLX }
func (r Rect) Height() float64 { return r.URY - r.LLY }

// letter is the fallback when no MediaBox appears anywhere on the path.
var letter = Rect{0, 0, 612, 792}

// Page is one leaf of the tree with inheritance already applied.
type Page struct {
	Index     int
	Ref       object.Ref
	Dict      *object.Dict
	MediaBox  Rect
	CropBox   Rect
	Rotate    int
	Resources *object.Dict
	// Contents is the raw /Contents entry: a stream reference, an
	// array of stream references, or absent (nil).
	Contents object.Object
}

// Tree is the flattened page list for one document revision.
type Tree struct {
	store *object.Store
	pages []*Page
}

type inherited struct {
	mediaBox  *Rect
	cropBox   *Rect
	rotate    *int
	resources *object.Dict
}

const maxTreeDepth = 64

// Load walks the catalog's /Pages tree. A cyclic or malformed subtree
// is logged and contributes no pages; a cycle at the root fails the
// whole load.
func Load(store *object.Store, log observability.Logger) (*Tree, error) {
	if log == nil {
		log = observability.NopLogger{}
	}
	root, ok := store.ResolveDict(store.Trailer(), "Root")
	if !ok {
		return nil, errors.New("trailer /Root is not a dictionary")
	}
	pagesObj, ok := root.Get("Pages")
	if !ok {
		return nil, errors.New("catalog has no /Pages")
	}

	t := &Tree{store: store}
	w := walker{store: store, log: log, visited: map[object.Ref]bool{}}
	if err := w.walk(pagesObj, inherited{}, 0, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Count returns the number of pages.
func (t *Tree) Count() int { return len(t.pages) }

// Pages returns pages in document order.
func (t *Tree) Pages() []*Page { return t.pages }

// Page returns the page at a 0-based index with an explicit bounds
// check; negative and past-the-end indices are rejected alike.
func (t *Tree) Page(index int) (*Page, error) {
	if index < 0 || index >= len(t.pages) {
		return nil, fmt.Errorf("page index %d out of range [0, %d)", index, len(t.pages))
	}
	return t.pages[index], nil
}

type walker struct {
	store   *object.Store
	log     observability.Logger
	visited map[object.Ref]bool
}

func (w *walker) walk(obj object.Object, inh inherited, depth int, t *Tree) error {
	if depth > maxTreeDepth {
		return fmt.Errorf("page tree deeper than %d", maxTreeDepth)
	}

	var ref object.Ref
	if r, ok := obj.(object.Reference); ok {
		ref = r.Ref
		if w.visited[ref] {
			return fmt.Errorf("%w: node %d %d", ErrCycle, ref.Num, ref.Gen)
		}
		w.visited[ref] = true
	}

	dict, ok := w.store.Resolve(obj).(*object.Dict)
	if !ok {
		return errors.New("page tree node is not a dictionary")
	}

	inh = absorb(w.store, dict, inh)

	if isLeaf(dict) {
		t.pages = append(t.pages, makePage(w.store, ref, dict, len(t.pages), inh))
		return nil
	}

	kids, ok := w.store.ResolveArray(dict, "Kids")
	if !ok {
		return errors.New("pages node has no /Kids array")
	}
	for i, kid := range kids.Items {
		if err := w.walk(kid, inh, depth+1, t); err != nil {
			w.log.Warn("skipping page tree subtree",
				observability.Int("kid", i), observability.Error("cause", err))
		}
	}
	return nil
}

// absorb layers a node's own inheritable attributes over what came
// down from its ancestors.
func absorb(store *object.Store, dict *object.Dict, inh inherited) inherited {
	if r, ok := rectEntry(store, dict, "MediaBox"); ok {
		inh.mediaBox = &r
	}
	if r, ok := rectEntry(store, dict, "CropBox"); ok {
		inh.cropBox = &r
	}
	if n, ok := store.ResolveInt(dict, "Rotate"); ok {
		rot := normalizeRotation(int(n))
		inh.rotate = &rot
	}
	if res, ok := store.ResolveDict(dict, "Resources"); ok {
		inh.resources = res
	}
	return inh
}

// isLeaf prefers /Type; a missing /Type with no /Kids is also treated
// as a page, which matches what damaged files in the wild need.
func isLeaf(dict *object.Dict) bool {
	if typ, ok := dict.Name("Type"); ok {
		return typ == "Page"
	}
	_, hasKids := dict.Get("Kids")
	return !hasKids
}

func makePage(store *object.Store, ref object.Ref, dict *object.Dict, index int, inh inherited) *Page {
	p := &Page{Index: index, Ref: ref, Dict: dict, Rotate: 0}
	if inh.mediaBox != nil {
		p.MediaBox = *inh.mediaBox
	} else {
		p.MediaBox = letter
	}
	if inh.cropBox != nil {
		p.CropBox = *inh.cropBox
	} else {
		p.CropBox = p.MediaBox
	}
	if inh.rotate != nil {
		p.Rotate = *inh.rotate
	}
	p.Resources = inh.resources
	if c, ok := dict.Get("Contents"); ok {
		p.Contents = c
	}
	return p
}

func rectEntry(store *object.Store, dict *object.Dict, key object.Name) (Rect, bool) {
	arr, ok := store.ResolveArray(dict, key)
	if !ok {
		return Rect{}, false
	}
	nums := arr.Floats()
	if len(nums) < 4 {
		return Rect{}, false
	}
	r := Rect{LLX: nums[0], LLY: nums[1], URX: nums[2], URY: nums[3]}
	if r.LLX > r.URX {
		r.LLX, r.URX = r.URX, r.LLX
	}
	if r.LLY > r.URY {
		r.LLY, r.URY = r.URY, r.LLY
	}
	return r, true
}

func normalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	// Anything off-axis rounds down to the nearest quarter turn.
	return deg - deg%90
}
