// Package leanpdf opens PDF files for reading, rendering, form filling
// and small edits, and saves them back either rewritten or as an
// incremental append. A Document owns all state of one open file; it
// is the only handle the rest of the API hangs off.
package leanpdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/semaphore"

	"leanpdf/content"
	"leanpdf/coords"
	"leanpdf/filters"
	"leanpdf/form"
	"leanpdf/object"
	"leanpdf/observability"
	"leanpdf/pagetree"
	"leanpdf/parser"
	"leanpdf/recovery"
	"leanpdf/render"
	"leanpdf/writer"
)

// DefaultZoom is used when a render call passes zoom <= 0.
const DefaultZoom = 2.0

// Info is the document metadata from the /Info dictionary.
type Info = parser.Info

// FieldInfo describes one form field as listed by the document.
type FieldInfo = form.Info

// RenderResult is a rendered page plus the constructs the rasterizer
// had to skip. A non-empty Degraded list is best-effort output, not an
// error.
type RenderResult = render.Result

// Options tune how a document is opened.
type Options struct {
	// Lenient repairs broken xref tables and skips unreadable objects
	// instead of failing the open.
	Lenient bool
	// Logger receives structured diagnostics; nil disables logging.
	Logger observability.Logger
	// RenderWorkers bounds RenderPages parallelism; 0 means 4.
	RenderWorkers int
}

// Document is the owning handle for one open file. All reads and
// mutations go through it; methods are safe for concurrent use.
type Document struct {
	mu     sync.RWMutex
	pageMu []sync.Mutex

	original []byte
	store    *object.Store
	tree     *pagetree.Tree
	forms    *form.Manager
	comp     *content.Compositor
	rend     *render.Renderer
	pipeline *filters.Pipeline

	version  string
	info     Info
	repaired bool
	workers  int
	log      observability.Logger
}

// Open parses data into a Document. The bytes are retained for
// incremental saves; callers must not mutate them afterwards.
func Open(ctx context.Context, data []byte, opts *Options) (*Document, error) {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	var strategy recovery.Strategy = recovery.NewStrict()
	if opts.Lenient {
		strategy = recovery.NewLenient()
	}

	res, err := parser.New(parser.Config{Recovery: strategy, Logger: log}).Parse(ctx, data)
	if err != nil {
		return nil, &ParseError{Op: "document", Err: err}
	}
	tree, err := pagetree.Load(res.Store, log)
	if err != nil {
		return nil, &StructureError{Op: "page tree", Err: err}
	}
	if tree.Count() == 0 {
		return nil, &StructureError{Op: "page tree", Err: errors.New("document has no readable pages")}
	}

	pipeline := filters.NewDefaultPipeline(filters.Limits{})
	rend, err := render.New(res.Store, pipeline, log)
	if err != nil {
		return nil, fmt.Errorf("init renderer: %w", err)
	}
	workers := opts.RenderWorkers
	if workers <= 0 {
		workers = 4
	}
	return &Document{
		pageMu:   make([]sync.Mutex, tree.Count()),
		original: data,
		store:    res.Store,
		tree:     tree,
		forms:    form.NewManager(res.Store, tree, log),
		comp:     content.NewCompositor(res.Store, pipeline),
		rend:     rend,
		pipeline: pipeline,
		version:  res.Version,
		info:     res.Info,
		repaired: res.Repaired,
		workers:  workers,
		log:      log,
	}, nil
}

// OpenFile reads and opens path.
func OpenFile(ctx context.Context, path string, opts *Options) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	return Open(ctx, data, opts)
}

// PageCount returns the number of readable pages.
func (d *Document) PageCount() int { return d.tree.Count() }

// Version is the header version, e.g. "1.7".
func (d *Document) Version() string { return d.version }

// Info returns the document metadata.
func (d *Document) Info() Info { return d.info }

// Repaired reports whether a lenient open had to rebuild the xref.
func (d *Document) Repaired() bool { return d.repaired }

func (d *Document) page(index int) (*pagetree.Page, error) {
	p, err := d.tree.Page(index)
	if err != nil {
		return nil, &ValidationError{Op: "page", Err: err}
	}
	return p, nil
}

// RenderPage rasterizes one page. zoom <= 0 renders at DefaultZoom.
func (d *Document) RenderPage(ctx context.Context, index int, zoom float64) (*RenderResult, error) {
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, err := d.page(index)
	if err != nil {
		return nil, err
	}
	d.pageMu[index].Lock()
	defer d.pageMu[index].Unlock()
	return d.rend.RenderPage(ctx, p, zoom)
}

// RenderPages rasterizes the given pages concurrently, bounded by the
// configured worker count. Results come back indexed like indices; the
// first failure cancels the rest.
func (d *Document) RenderPages(ctx context.Context, indices []int, zoom float64) ([]*RenderResult, error) {
	results := make([]*RenderResult, len(indices))
	sem := semaphore.NewWeighted(int64(d.workers))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for i, index := range indices {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(slot, page int) {
			defer wg.Done()
			defer sem.Release(1)
			res, err := d.RenderPage(ctx, page, zoom)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				return
			}
			results[slot] = res
		}(i, index)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// ListFormFields returns every visible form field in document order.
// A document without a form lists as empty.
func (d *Document) ListFormFields() []FieldInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.forms.List()
}

// UpdateFormField sets the named field. The boolean reports whether
// the name matched anything; a miss is not an error. Invalid values
// for checkbox and radio fields return a ValidationError and leave
// the prior value in place.
func (d *Document) UpdateFormField(name, value string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	found, err := d.forms.Set(name, value)
	if err != nil {
		return found, &ValidationError{Op: fmt.Sprintf("field %q", name), Err: err}
	}
	return found, nil
}

// InsertText places a text run on the page at (x, y) in PDF user
// space, bottom-left origin. size <= 0 uses the 12pt default.
func (d *Document) InsertText(ctx context.Context, index int, x, y float64, text string, size float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.page(index)
	if err != nil {
		return err
	}
	return d.comp.InsertText(ctx, p, x, y, text, size)
}

// InsertTextDevice is InsertText for callers holding top-left device
// pixels from a page rendered at the given zoom.
func (d *Document) InsertTextDevice(ctx context.Context, index int, px, py, zoom float64, text string, size float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.page(index)
	if err != nil {
		return err
	}
	pt := coords.DeviceToPDF(coords.Point{X: px, Y: py}, p.MediaBox.Height(), zoom)
	return d.comp.InsertText(ctx, p, pt.X, pt.Y, text, size)
}

// Bytes serializes the document. Incremental keeps the original bytes
// and appends only the changed objects; the rewrite mode produces a
// fresh standalone file.
func (d *Document) Bytes(incremental bool) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bytesLocked(incremental)
}

func (d *Document) bytesLocked(incremental bool) ([]byte, error) {
	w := writer.New(d.store, writer.Config{Version: d.version, Logger: d.log})
	if incremental {
		return w.AppendIncremental(d.original)
	}
	return w.WriteFull()
}

// Save writes the document to path atomically. After a successful
// save the dirty set resets and further incremental saves chain onto
// the just-written bytes.
func (d *Document) Save(path string, incremental bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, err := d.bytesLocked(incremental)
	if err != nil {
		return err
	}
	if err := writer.SaveFile(path, data); err != nil {
		return &IOError{Path: path, Err: err}
	}
	d.original = data
	d.store.ClearDirty()
	return nil
}
