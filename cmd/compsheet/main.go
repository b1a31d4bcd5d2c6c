package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"compsheet/internal"
	"compsheet/internal/config"
	"compsheet/internal/connectors"
	gmailconnector "compsheet/internal/connectors/gmail"
	imapconnector "compsheet/internal/connectors/imap"
	"compsheet/internal/listener"
	"compsheet/internal/logging"
	"compsheet/internal/pipeline"
	"compsheet/internal/publish"
	"compsheet/internal/remote"
	"compsheet/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	must(err)
	defer func() { _ = logger.Sync() }()

	cmd := os.Args[1]
	if cmd == "run" {
		runOneShot(cfg, os.Args[2:])
		return
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	processor := pipeline.NewProcessingService(db, cfg, logger)

	switch cmd {
	case "upload:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "csv|xlsx|html|pdf|eml file")
		inType := fs.String("type", "auto", "auto|csv|xlsx|html|pdf|email")
		sheet := fs.String("sheet", "", "xlsx sheet name")
		table := fs.Int("table", 1, "which table to import when the input holds several")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		must(checkSize(cfg, *file))
		tables, err := pipeline.ExtractTables(*inType, *file, *sheet)
		must(err)
		t, err := pickTable(tables, *table)
		must(err)
		res, err := processor.ImportTable(t, nil)
		must(err)
		fmt.Printf("imported upload id=%d rows=%d mapped=%d/%d\n", res.UploadID, len(t.Rows), res.Mapping.MappedCount(), len(res.Mapping))
		printMapping(res.Mapping)
	case "upload:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		rawURL := fs.String("url", "", "export url")
		sheet := fs.String("sheet", "", "xlsx sheet name")
		table := fs.Int("table", 1, "which table to import when the download holds several")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*rawURL) == "" {
			must(fmt.Errorf("--url is required"))
		}
		dl, err := remote.NewClient(cfg, logger).Download(ctx, *rawURL)
		must(err)
		tables, err := pipeline.ExtractTablesFromBytes(pipeline.DetectInputType(dl.Name), dl.Name, dl.Body, *sheet)
		must(err)
		t, err := pickTable(tables, *table)
		must(err)
		res, err := processor.ImportTable(t, nil)
		must(err)
		fmt.Printf("fetched %s (%d bytes) upload id=%d rows=%d mapped=%d/%d\n", dl.Name, len(dl.Body), res.UploadID, len(t.Rows), res.Mapping.MappedCount(), len(res.Mapping))
		printMapping(res.Mapping)
	case "upload:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 20, "max uploads")
		_ = fs.Parse(os.Args[2:])
		uploads, err := db.ListUploads(*limit)
		must(err)
		for _, u := range uploads {
			fmt.Printf("%d  %s  %s  rows=%d  %s\n", u.ID, u.CreatedAt, u.Source, u.RowCount, u.SourceName)
		}
	case "mapping:suggest":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		uploadID := fs.Int64("upload", 0, "upload id")
		headers := fs.String("headers", "", "comma separated headers (instead of --upload)")
		out := fs.String("out", "", "write mapping to .yaml|.json for editing")
		_ = fs.Parse(os.Args[2:])
		var hs []string
		source := ""
		switch {
		case *uploadID != 0:
			upload, err := db.MustUpload(*uploadID)
			must(err)
			hs, source = upload.Headers, upload.SourceName
		case strings.TrimSpace(*headers) != "":
			for _, h := range strings.Split(*headers, ",") {
				hs = append(hs, strings.TrimSpace(h))
			}
		default:
			must(fmt.Errorf("--upload or --headers is required"))
		}
		m := pipeline.SuggestMapping(hs)
		printMapping(m)
		if *out != "" {
			must(pipeline.SaveMappingFile(*out, pipeline.MappingFile{Source: source, Mapping: m}))
			fmt.Printf("mapping written to %s\n", *out)
		}
	case "mapping:apply":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		uploadID := fs.Int64("upload", 0, "upload id")
		file := fs.String("file", "", "edited mapping .yaml|.json")
		_ = fs.Parse(os.Args[2:])
		if *uploadID == 0 || strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--upload and --file are required"))
		}
		mf, err := pipeline.LoadMappingFile(*file)
		must(err)
		warnUnknown(mf)
		id, err := processor.ApplyMapping(*uploadID, mf.Mapping)
		must(err)
		fmt.Printf("mapping id=%d applied to upload id=%d mapped=%d/%d\n", id, *uploadID, mf.Mapping.MappedCount(), len(mf.Mapping))
	case "report:build":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		uploadID := fs.Int64("upload", 0, "upload id")
		title := fs.String("title", "", "report title")
		_ = fs.Parse(os.Args[2:])
		if *uploadID == 0 {
			must(fmt.Errorf("--upload is required"))
		}
		report, err := processor.BuildReport(*uploadID, *title)
		must(err)
		printReport(cfg, report)
	case "report:show":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "report id")
		asJSON := fs.Bool("json", false, "print the full report as JSON")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*id) == "" {
			reports, err := db.ListReports(20)
			must(err)
			for _, r := range reports {
				fmt.Printf("%s  %s  comps=%d  %s\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04"), len(r.Comps), r.Title)
			}
			return
		}
		report, err := db.MustReport(*id)
		must(err)
		if *asJSON {
			blob, err := json.MarshalIndent(report, "", "  ")
			must(err)
			fmt.Println(string(blob))
			return
		}
		printReport(cfg, report)
	case "report:export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "report id")
		out := fs.String("out", "", "output path; format follows the extension (.xlsx|.csv|.json)")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*id) == "" || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--id and --out are required"))
		}
		report, err := db.MustReport(*id)
		must(err)
		must(exportReport(report, *out))
		fmt.Printf("exported report %s comps=%d to %s\n", report.ID, len(report.Comps), *out)
	case "report:publish":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "report id")
		target := fs.String("target", "postgres", "postgres|csv")
		out := fs.String("out", "", "csv path for --target=csv")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*id) == "" {
			must(fmt.Errorf("--id is required"))
		}
		report, err := db.MustReport(*id)
		must(err)
		w, err := makePublisher(cfg, *target, *out)
		must(err)
		must(w.Write(report))
		must(w.Close())
		fmt.Printf("published report %s comps=%d target=%s\n", report.ID, len(report.Comps), *target)
	case "share:resolve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		token := fs.String("token", "", "share token or share url")
		_ = fs.Parse(os.Args[2:])
		t := strings.TrimSpace(*token)
		if i := strings.LastIndex(t, "/"); i >= 0 {
			t = t[i+1:]
		}
		if t == "" {
			must(fmt.Errorf("--token is required"))
		}
		report, err := processor.ResolveShare(t)
		must(err)
		printReport(cfg, report)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		label := fs.String("label", "INBOX", "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := makeConnector(ctx, cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn, logger)
		result, err := fetch.FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d new=%d\n", *provider, result.Fetched, result.Stored, result.New)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*messageID) != "" {
			res, err := processor.ProcessByProviderMessageID(*provider, *messageID)
			must(err)
			fmt.Printf("processed email id=%d tables=%d reports=%d\n", res.EmailID, res.Tables, len(res.Reports))
			for _, r := range res.Reports {
				fmt.Printf("  report %s %s\n", r.ID, pipeline.ShareURL(cfg, r))
			}
			return
		}
		processedEmails, reports, err := processor.ProcessPending(*batch, *provider)
		must(err)
		fmt.Printf("processed pending emails=%d reports=%d\n", processedEmails, reports)
	case "mail:listen":
		s := listener.NewService(db, cfg, logger)
		if cfg.PublishPostgresDSN != "" {
			w, err := publish.NewPostgresWriter(cfg.PublishPostgresDSN, cfg.PublishPostgresTable)
			must(err)
			defer w.Close()
			s.WithPublisher(w)
		}
		must(s.Run(ctx))
	default:
		usage()
		os.Exit(1)
	}
}

// runOneShot goes from a file straight to an exported report without
// touching the database.
func runOneShot(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	input := fs.String("input", "", "input file path")
	inType := fs.String("type", "auto", "auto|csv|xlsx|html|pdf|email")
	sheet := fs.String("sheet", "", "xlsx sheet name")
	table := fs.Int("table", 1, "which table to use when the input holds several")
	mappingFile := fs.String("mapping", "", "mapping .yaml|.json to use instead of the suggestion")
	output := fs.String("output", "", "output path (.xlsx|.csv|.json)")
	_ = fs.Parse(args)
	if *input == "" || *output == "" {
		must(fmt.Errorf("--input and --output are required"))
	}

	must(checkSize(cfg, *input))
	tables, err := pipeline.ExtractTables(*inType, *input, *sheet)
	must(err)
	t, err := pickTable(tables, *table)
	must(err)
	if cfg.MaxUploadRows > 0 && len(t.Rows) > cfg.MaxUploadRows {
		must(fmt.Errorf("%s: %d rows, limit %d: %w", *input, len(t.Rows), cfg.MaxUploadRows, pipeline.ErrTooManyRows))
	}

	var res pipeline.CompResult
	if *mappingFile != "" {
		mf, err := pipeline.LoadMappingFile(*mappingFile)
		must(err)
		warnUnknown(mf)
		res, err = pipeline.BuildCompsWithMapping(t, mf.Mapping)
		must(err)
	} else {
		res, err = pipeline.BuildComps(t)
		must(err)
	}

	report := internal.Report{
		Title:   filepath.Base(*input),
		Comps:   res.Comps,
		Stats:   res.Stats,
		Dropped: res.Dropped,
	}
	must(exportReport(report, *output))
	fmt.Printf("run done comps=%d dropped=%d output=%s\n", len(res.Comps), res.Dropped, *output)
	printStats(res.Stats)
}

func pickTable(tables []internal.Table, n int) (internal.Table, error) {
	if n < 1 || n > len(tables) {
		return internal.Table{}, fmt.Errorf("table %d requested, input has %d", n, len(tables))
	}
	return tables[n-1], nil
}

func checkSize(cfg config.Config, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if cfg.MaxUploadBytes > 0 && info.Size() > cfg.MaxUploadBytes {
		return fmt.Errorf("%s is %d bytes, limit %d", path, info.Size(), cfg.MaxUploadBytes)
	}
	return nil
}

func exportReport(report internal.Report, out string) error {
	switch strings.ToLower(filepath.Ext(out)) {
	case ".xlsx":
		return pipeline.ExportReportToXLSX(report, out)
	case ".csv":
		return pipeline.ExportCompsToCSV(report.Comps, out)
	case ".json":
		return pipeline.ExportReportJSON(report, out)
	default:
		return fmt.Errorf("unsupported output format: %s", out)
	}
}

func makePublisher(cfg config.Config, target, out string) (publish.ReportWriter, error) {
	switch target {
	case "postgres":
		if err := cfg.Require("PUBLISH_POSTGRES_DSN", cfg.PublishPostgresDSN); err != nil {
			return nil, err
		}
		return publish.NewPostgresWriter(cfg.PublishPostgresDSN, cfg.PublishPostgresTable)
	case "csv":
		if strings.TrimSpace(out) == "" {
			return nil, fmt.Errorf("--out is required for --target=csv")
		}
		return publish.NewCSVWriter(out)
	default:
		return nil, fmt.Errorf("unsupported publish target: %s", target)
	}
}

func makeConnector(ctx context.Context, cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func printMapping(m internal.HeaderMapping) {
	for _, e := range m {
		if e.Field != "" {
			fmt.Printf("  %-28s -> %s\n", e.Header, e.Field)
			continue
		}
		hints := pipeline.MappingHints(e.Header)
		if len(hints) == 0 {
			fmt.Printf("  %-28s -> (unmapped)\n", e.Header)
			continue
		}
		names := make([]string, 0, len(hints))
		for _, h := range hints {
			names = append(names, fmt.Sprintf("%s %.2f", h.Field, h.Score))
		}
		fmt.Printf("  %-28s -> (unmapped; maybe %s)\n", e.Header, strings.Join(names, ", "))
	}
}

func printReport(cfg config.Config, r internal.Report) {
	fmt.Printf("report %s %q comps=%d dropped=%d\n", r.ID, r.Title, len(r.Comps), r.Dropped)
	fmt.Printf("  share: %s", pipeline.ShareURL(cfg, r))
	if r.ExpiresAt != nil {
		fmt.Printf(" (expires %s)", r.ExpiresAt.Format("2006-01-02"))
	}
	fmt.Println()
	printStats(r.Stats)
}

func printStats(s internal.MarketStats) {
	row := func(name string, v *float64) {
		if v == nil {
			fmt.Printf("  %-20s -\n", name)
			return
		}
		fmt.Printf("  %-20s %.0f\n", name, *v)
	}
	row("avg sold price", s.AvgSoldPrice)
	row("avg price/sqft", s.AvgPricePerSqft)
	row("avg days on market", s.AvgDOM)
	row("median sold price", s.Median)
	row("suggested list low", s.SuggestedListLow)
	row("suggested list high", s.SuggestedListHigh)
}

func usage() {
	fmt.Println("usage: compsheet <command>")
	fmt.Println("commands:")
	fmt.Println("  upload:import --file=comps.csv [--type=auto] [--sheet=...] [--table=1]")
	fmt.Println("  upload:fetch --url=https://... [--sheet=...]")
	fmt.Println("  upload:list [--limit=20]")
	fmt.Println("  mapping:suggest --upload=1 | --headers=\"Address,Sold Price\" [--out=mapping.yaml]")
	fmt.Println("  mapping:apply --upload=1 --file=mapping.yaml")
	fmt.Println("  report:build --upload=1 [--title=...]")
	fmt.Println("  report:show [--id=...] [--json]")
	fmt.Println("  report:export --id=... --out=./out/report.xlsx|.csv|.json")
	fmt.Println("  report:publish --id=... [--target=postgres|csv] [--out=...]")
	fmt.Println("  share:resolve --token=...")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process --provider=gmail|imap [--messageId=...] [--batch=20]")
	fmt.Println("  mail:listen")
	fmt.Println("  run --input=... [--type=auto] [--mapping=...] --output=...xlsx|.csv|.json")
}

func warnUnknown(mf pipeline.MappingFile) {
	for _, e := range mf.UnknownEntries() {
		fmt.Fprintf(os.Stderr, "warning: %q: unknown field %q, left unmapped\n", e.Header, e.Field)
	}
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
