package content

import (
	"bytes"
	"context"
	"fmt"

	"leanpdf/filters"
	"leanpdf/fonts"
	"leanpdf/object"
	"leanpdf/pagetree"
)

// FontResourceName is the key new text runs use in the page's /Font
// resource dictionary.
const FontResourceName object.Name = "Helv"

// Compositor rewrites page content streams in place, keeping the
// store's dirty set accurate for incremental save.
type Compositor struct {
	store    *object.Store
	pipeline *filters.Pipeline
}

func NewCompositor(store *object.Store, pipeline *filters.Pipeline) *Compositor {
	return &Compositor{store: store, pipeline: pipeline}
}

// AppendOperators decodes the page's content, appends the raw operator
// bytes, and re-encodes the result as a single flate stream. The page
// ends up with one owned content stream regardless of how many it had.
func (c *Compositor) AppendOperators(ctx context.Context, page *pagetree.Page, raw []byte) error {
	existing, err := Decoded(ctx, c.store, page.Contents, c.pipeline)
	if err != nil {
		return fmt.Errorf("decode page %d content: %w", page.Index, err)
	}
	var buf bytes.Buffer
	buf.Write(existing)
	if buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.Write(raw)

	encoded, err := filters.FlateEncode(buf.Bytes())
	if err != nil {
		return err
	}

	// A lone stream reference is rewritten in place; anything else
	// (array, direct, absent) moves to a fresh object.
	if ref, ok := page.Contents.(object.Reference); ok {
		if st, ok := c.store.Resolve(ref).(*object.Stream); ok {
			st.Dict.Set("Filter", object.Name("FlateDecode"))
			st.Dict.Delete("DecodeParms")
			st.SetRaw(encoded)
			c.store.MarkDirty(ref.Ref)
			return nil
		}
	}

	dict := object.NewDict()
	dict.Set("Filter", object.Name("FlateDecode"))
	st := object.NewStream(dict, encoded)
	newRef := c.store.Allocate(st)
	page.Dict.Set("Contents", object.Reference{Ref: newRef})
	page.Contents = object.Reference{Ref: newRef}
	c.store.MarkDirty(page.Ref)
	return nil
}

// InsertText appends a text-showing block at (x, y) in PDF user space
// using the built-in base font. No overlap or bounds checking is done
// on the position; callers own layout.
func (c *Compositor) InsertText(ctx context.Context, page *pagetree.Page, x, y float64, text string, size float64) error {
	if size <= 0 {
		size = 12
	}
	if err := c.ensureBaseFont(page); err != nil {
		return err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "q\nBT\n/%s %s Tf\n0 0 0 rg\n1 0 0 1 %s %s Tm\n(%s) Tj\nET\nQ\n",
		FontResourceName, formatNumber(size), formatNumber(x), formatNumber(y),
		fonts.EscapeText(text))
	return c.AppendOperators(ctx, page, buf.Bytes())
}

// ensureBaseFont guarantees the page's own resource dictionary maps
// FontResourceName to the base font. Inherited resources are never
// mutated; the page gets its own copy of the /Font map instead.
func (c *Compositor) ensureBaseFont(page *pagetree.Page) error {
	res, owned := c.store.ResolveDict(page.Dict, "Resources")
	if !owned {
		res = object.NewDict()
		if page.Resources != nil {
			for _, k := range page.Resources.SortedKeys() {
				v, _ := page.Resources.Get(k)
				res.Set(k, v)
			}
		}
		page.Dict.Set("Resources", res)
		page.Resources = res
		c.store.MarkDirty(page.Ref)
	}

	fontDict, ok := c.store.ResolveDict(res, "Font")
	if !ok {
		fontDict = object.NewDict()
		res.Set("Font", fontDict)
	}
	if _, ok := fontDict.Get(FontResourceName); ok {
		return nil
	}
	helv := object.NewDict()
	helv.Set("Type", object.Name("Font"))
	helv.Set("Subtype", object.Name("Type1"))
	helv.Set("BaseFont", object.Name(fonts.BaseFontName))
	helv.Set("Encoding", object.Name("WinAnsiEncoding"))
	fontDict.Set(FontResourceName, helv)

	// The mutation lands in whichever object actually holds the
	// resource dictionary.
	if rref, ok := page.Dict.Ref("Resources"); ok {
		c.store.MarkDirty(rref)
	} else {
		c.store.MarkDirty(page.Ref)
	}
	return nil
}

// formatNumber trims trailing zeros so coordinates read like
// hand-written content.
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.2f", f)
}
