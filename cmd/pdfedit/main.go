// Command pdfedit inspects and edits PDF files: document info, page
// rendering to PNG, form field listing and filling, text insertion,
// and full or incremental saves.
package main

import (
	"context"
	"fmt"
	"image/png"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"leanpdf"
	"leanpdf/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "pdfedit: %v\n", err)
		os.Exit(1)
	}
}

func usage() string {
	return `Usage: pdfedit <command> [flags] <pdf>

Commands:
  info         Print document metadata and page count
  render       Rasterize one page to PNG (--page, --out)
  fields       List form fields
  set-field    Set a form field value (--field, --value, --out)
  insert-text  Place a text run on a page (--page, --x, --y, --text, --out)

Shared flags: --mode, --zoom, --fontsize, --workers, --loglevel, --incremental
Environment:  LEANPDF_MODE, LEANPDF_ZOOM, LEANPDF_LOGLEVEL, ...`
}

type cmdFlags struct {
	page   int
	out    string
	field  string
	value  string
	text   string
	x, y   float64
	device bool
}

func run(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("missing command\n%s", usage())
	}
	command := args[0]

	fs := pflag.NewFlagSet(command, pflag.ContinueOnError)
	v := viper.New()
	config.RegisterFlags(fs, v, config.NewDefault())

	var cf cmdFlags
	fs.IntVar(&cf.page, "page", 0, "Page index, zero-based")
	fs.StringVar(&cf.out, "out", "", "Output path (default: overwrite input; render requires it)")
	fs.StringVar(&cf.field, "field", "", "Fully qualified field name")
	fs.StringVar(&cf.value, "value", "", "Field value to set")
	fs.StringVar(&cf.text, "text", "", "Text to insert")
	fs.Float64Var(&cf.x, "x", 72, "X coordinate")
	fs.Float64Var(&cf.y, "y", 72, "Y coordinate")
	fs.BoolVar(&cf.device, "device", false, "Treat --x/--y as top-left device pixels at --zoom")

	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected exactly one input file\n%s", usage())
	}
	input := fs.Arg(0)

	ctx := context.Background()
	doc, err := leanpdf.OpenFile(ctx, input, &leanpdf.Options{
		Lenient:       cfg.IsLenient(),
		Logger:        cfg.Logger(),
		RenderWorkers: cfg.RenderWorkers,
	})
	if err != nil {
		return err
	}

	switch command {
	case "info":
		return runInfo(doc)
	case "render":
		return runRender(ctx, doc, cfg, cf)
	case "fields":
		return runFields(doc)
	case "set-field":
		return runSetField(doc, cfg, cf, input)
	case "insert-text":
		return runInsertText(ctx, doc, cfg, cf, input)
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage())
	}
}

func runInfo(doc *leanpdf.Document) error {
	info := doc.Info()
	fmt.Printf("version:  %s\n", doc.Version())
	fmt.Printf("pages:    %d\n", doc.PageCount())
	fmt.Printf("fields:   %d\n", len(doc.ListFormFields()))
	if doc.Repaired() {
		fmt.Println("repaired: yes")
	}
	for _, kv := range []struct{ k, v string }{
		{"title", info.Title},
		{"author", info.Author},
		{"subject", info.Subject},
		{"creator", info.Creator},
		{"producer", info.Producer},
	} {
		if kv.v != "" {
			fmt.Printf("%-9s %s\n", kv.k+":", kv.v)
		}
	}
	return nil
}

func runRender(ctx context.Context, doc *leanpdf.Document, cfg *config.Config, cf cmdFlags) error {
	if cf.out == "" {
		return fmt.Errorf("render requires --out")
	}
	res, err := doc.RenderPage(ctx, cf.page, cfg.Zoom)
	if err != nil {
		return err
	}
	for _, msg := range res.Degraded {
		fmt.Fprintf(os.Stderr, "pdfedit: page %d: %s\n", cf.page, msg)
	}
	f, err := os.Create(cf.out)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, res.Pix.RGBA()); err != nil {
		return fmt.Errorf("encode %s: %w", cf.out, err)
	}
	fmt.Printf("wrote %s (%dx%d)\n", cf.out, res.Pix.Width, res.Pix.Height)
	return nil
}

func runFields(doc *leanpdf.Document) error {
	fields := doc.ListFormFields()
	if len(fields) == 0 {
		fmt.Println("no form fields")
		return nil
	}
	for _, f := range fields {
		fmt.Printf("%-10s %-30s %q\n", f.Type, f.Name, f.Value)
	}
	return nil
}

func runSetField(doc *leanpdf.Document, cfg *config.Config, cf cmdFlags, input string) error {
	if cf.field == "" {
		return fmt.Errorf("set-field requires --field")
	}
	found, err := doc.UpdateFormField(cf.field, cf.value)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no field named %q", cf.field)
	}
	return save(doc, cfg, cf, input)
}

func runInsertText(ctx context.Context, doc *leanpdf.Document, cfg *config.Config, cf cmdFlags, input string) error {
	if cf.text == "" {
		return fmt.Errorf("insert-text requires --text")
	}
	var err error
	if cf.device {
		err = doc.InsertTextDevice(ctx, cf.page, cf.x, cf.y, cfg.Zoom, cf.text, cfg.FontSize)
	} else {
		err = doc.InsertText(ctx, cf.page, cf.x, cf.y, cf.text, cfg.FontSize)
	}
	if err != nil {
		return err
	}
	return save(doc, cfg, cf, input)
}

func save(doc *leanpdf.Document, cfg *config.Config, cf cmdFlags, input string) error {
	out := cf.out
	if out == "" {
		out = input
	}
	if err := doc.Save(out, cfg.Incremental); err != nil {
		return err
	}
	fmt.Printf("saved %s\n", out)
	return nil
}
