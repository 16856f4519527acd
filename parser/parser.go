// Package parser turns PDF bytes into a populated object store. It
// resolves the cross-reference chain, loads every reachable object
// (including ones packed into object streams), and validates that the
// document has a usable catalog.
package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leanpdf/filters"
	"leanpdf/object"
	"leanpdf/observability"
	"leanpdf/recovery"
	"leanpdf/scanner"
	"leanpdf/xref"
)

// Config controls parsing behavior and resource limits.
type Config struct {
	Recovery recovery.Strategy
	Scanner  scanner.Config
	XRef     xref.Config
	Filters  filters.Limits
	Logger   observability.Logger
}

// Info carries the document information dictionary fields.
type Info struct {
	Title    string
	Author   string
	Subject  string
	Keywords string
	Creator  string
	Producer string
}

// Result is a fully loaded document.
type Result struct {
	Store    *object.Store
	Table    *xref.Table
	Version  string
	Info     Info
	Repaired bool
}

// DocumentParser parses whole documents.
type DocumentParser struct {
	cfg Config
	log observability.Logger
}

func New(cfg Config) *DocumentParser {
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewStrict()
	}
	return &DocumentParser{cfg: cfg, log: log}
}

// Parse loads data into an object store. On a broken xref chain a
// lenient strategy falls back to a full-file repair scan.
func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*Result, error) {
	res := &Result{
		Store:   object.NewStore(),
		Version: detectHeaderVersion(data),
	}

	table, err := xref.NewResolver(p.cfg.XRef).Resolve(ctx, data)
	if err != nil {
		action := p.cfg.Recovery.OnError(err, recovery.Location{Component: "parser:xref"})
		if action == recovery.ActionFail {
			return nil, fmt.Errorf("resolve xref: %w", err)
		}
		p.log.Warn("xref chain unusable, rebuilding by scan", observability.Error("cause", err))
		table, err = xref.Repair(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("repair xref: %w", err)
		}
		res.Repaired = true
	}
	res.Table = table

	ld := newLoader(data, table, res.Store, p.cfg)
	for _, num := range table.Objects() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, _ := table.Lookup(num)
		ref := object.Ref{Num: num, Gen: entry.Gen}
		if _, ok := res.Store.Get(ref); ok {
			continue
		}
		obj, err := ld.Load(ctx, ref)
		if err != nil {
			action := p.cfg.Recovery.OnError(err, recovery.Location{
				ObjectNum: num, ObjectGen: entry.Gen, Component: "parser:load",
			})
			if action == recovery.ActionFail {
				return nil, fmt.Errorf("load object %d %d: %w", num, entry.Gen, err)
			}
			p.log.Warn("skipping unreadable object",
				observability.Int("object", num), observability.Error("cause", err))
			continue
		}
		res.Store.Load(ref, obj)
	}

	res.Store.SetTrailer(table.Trailer())
	if err := validateCatalog(res.Store); err != nil {
		return nil, err
	}
	p.populateInfo(res)
	return res, nil
}

// validateCatalog confirms the trailer points at a page-tree-bearing
// catalog; without one the document is unusable.
func validateCatalog(store *object.Store) error {
	rootRef, ok := store.Trailer().Ref("Root")
	if !ok {
		return errors.New("trailer has no /Root")
	}
	root, ok := store.Get(rootRef)
	if !ok {
		return fmt.Errorf("root catalog %d %d missing", rootRef.Num, rootRef.Gen)
	}
	cat, ok := store.Resolve(root).(*object.Dict)
	if !ok {
		return errors.New("root catalog is not a dictionary")
	}
	if _, ok := cat.Get("Pages"); !ok {
		return errors.New("catalog has no /Pages")
	}
	return nil
}

func (p *DocumentParser) populateInfo(res *Result) {
	infoDict, ok := res.Store.ResolveDict(res.Store.Trailer(), "Info")
	if !ok {
		return
	}
	get := func(key object.Name) string {
		b, _ := res.Store.ResolveString(infoDict, key)
		return decodeTextString(b)
	}
	res.Info = Info{
		Title:    get("Title"),
		Author:   get("Author"),
		Subject:  get("Subject"),
		Keywords: get("Keywords"),
		Creator:  get("Creator"),
		Producer: get("Producer"),
	}
}

// decodeTextString interprets a PDF text string: UTF-16BE with BOM, or
// PDFDocEncoding treated as Latin-1.
func decodeTextString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		var sb strings.Builder
		for i := 2; i+1 < len(b); i += 2 {
			sb.WriteRune(rune(b[i])<<8 | rune(b[i+1]))
		}
		return sb.String()
	}
	var sb strings.Builder
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}

func detectHeaderVersion(data []byte) string {
	n := len(data)
	if n > 64 {
		n = 64
	}
	line := string(data[:n])
	for _, sep := range []string{"\r\n", "\n", "\r"} {
		if idx := strings.Index(line, sep); idx >= 0 {
			line = line[:idx]
			break
		}
	}
	if strings.HasPrefix(line, "%PDF-") {
		return strings.TrimSpace(line[len("%PDF-"):])
	}
	return ""
}
