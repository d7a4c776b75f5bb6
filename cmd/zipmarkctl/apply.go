package main

import (
	"context"
	"fmt"

	"github.com/cordum/zipmark/core/rules"
	"github.com/cordum/zipmark/core/watermark"
	"github.com/cordum/zipmark/core/ziparchive"
)

type applyOptions struct {
	rulesPath string
	in        string
	out       string
	itemID    string
	dryRun    bool
	sub       watermark.Substitution
}

type ruleLine struct {
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	Path   string `json:"path"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

type reportView struct {
	Root    string     `json:"root"`
	Applied int        `json:"applied"`
	Skipped int        `json:"skipped"`
	Rules   []ruleLine `json:"rules"`
	Output  string     `json:"output,omitempty"`
}

func newReportView(r watermark.Report) reportView {
	v := reportView{
		Root:    r.Root,
		Applied: r.Count(watermark.StatusApplied),
		Skipped: r.Count(watermark.StatusSkipped),
		Rules:   make([]ruleLine, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		line := ruleLine{
			Index:  res.Index,
			Kind:   string(res.Rule.Kind),
			Path:   res.Path,
			Status: res.Outcome.Status.String(),
			Reason: string(res.Outcome.Reason),
		}
		if res.Outcome.Err != nil {
			line.Error = res.Outcome.Err.Error()
		}
		v.Rules = append(v.Rules, line)
	}
	return v
}

func runApplyCmd(args []string) {
	fs := newFlagSet("apply")
	opts := applyOptions{}
	fs.StringVar(&opts.rulesPath, "rules", envOr("ZIPMARK_RULES_PATH", ""), "rule file (yaml or json)")
	fs.StringVar(&opts.in, "in", "", "source archive")
	fs.StringVar(&opts.out, "out", "", "destination archive")
	fs.StringVar(&opts.itemID, "item", "", "item id selecting per-item rules")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "report without writing the output")
	license := fs.String("license", "", "license key")
	customer := fs.Int64("customer", 0, "customer id")
	payment := fs.Int64("payment", 0, "payment id")
	download := fs.Int64("download", 0, "download id (0 for none)")
	fs.ParseArgs(args)

	opts.sub = substitutionFromFlags(*license, *customer, *payment, *download)
	view, err := applyArchive(context.Background(), opts)
	check(err)
	printJSON(view)
}

func substitutionFromFlags(license string, customer, payment, download int64) watermark.Substitution {
	sub := watermark.Substitution{LicenseKey: license, CustomerID: customer, PaymentID: payment}
	if download != 0 {
		sub.DownloadID = &download
	}
	return sub
}

func applyArchive(ctx context.Context, opts applyOptions) (reportView, error) {
	if opts.in == "" {
		return reportView{}, fmt.Errorf("--in required")
	}
	if opts.out == "" && !opts.dryRun {
		return reportView{}, fmt.Errorf("--out required unless --dry-run")
	}
	if err := opts.sub.Validate(); err != nil {
		return reportView{}, err
	}
	src, err := rules.LoadFile(opts.rulesPath)
	if err != nil {
		return reportView{}, err
	}
	itemID := opts.itemID
	if itemID == "" && opts.sub.DownloadID != nil {
		itemID = fmt.Sprint(*opts.sub.DownloadID)
	}
	ruleList, err := src.Resolve(ctx, itemID)
	if err != nil {
		return reportView{}, err
	}

	arc, err := ziparchive.Open(opts.in)
	if err != nil {
		return reportView{}, err
	}
	defer arc.Close()

	report, err := watermark.NewEngine().Quiet().ApplyAll(arc, ruleList, opts.sub)
	view := newReportView(report)
	if err != nil {
		return view, err
	}
	if opts.dryRun {
		return view, nil
	}
	if err := arc.Save(opts.out); err != nil {
		return view, err
	}
	view.Output = opts.out
	return view, nil
}

func runRootCmd(args []string) {
	fs := newFlagSet("root")
	fs.ParseArgs(args)
	if fs.NArg() < 1 {
		fail("usage: root <archive.zip>")
	}
	root, err := archiveRoot(fs.Arg(0))
	check(err)
	fmt.Println(root)
}

func archiveRoot(path string) (string, error) {
	arc, err := ziparchive.Open(path)
	if err != nil {
		return "", err
	}
	defer arc.Close()
	return watermark.DetectRoot(arc.Names()), nil
}

func runRenderCmd(args []string) {
	fs := newFlagSet("render")
	tmpl := fs.String("template", "", "template text")
	license := fs.String("license", "", "license key")
	customer := fs.Int64("customer", 0, "customer id")
	payment := fs.Int64("payment", 0, "payment id")
	download := fs.Int64("download", 0, "download id (0 for none)")
	fs.ParseArgs(args)
	fmt.Print(watermark.Render(*tmpl, substitutionFromFlags(*license, *customer, *payment, *download)))
}
