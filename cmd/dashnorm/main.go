package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"dashnorm/internal/config"
	"dashnorm/internal/logging"
	"dashnorm/internal/pipeline"
	"dashnorm/internal/report"
	"dashnorm/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel)
	must(err)
	defer func() { _ = log.Sync() }()

	cmd := os.Args[1]
	switch cmd {
	case "presets":
		presets, err := pipeline.LoadPresets(cfg.PresetsFile)
		must(err)
		for _, name := range pipeline.PresetNames(presets) {
			p := presets[name]
			fmt.Printf("%s identity=%s packed=%s\n", name, strings.Join(p.IdentityFields, ","), strings.Join(p.PackedFields(), ","))
		}
		return
	case "detect":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "input file path")
		inType := fs.String("type", "", "csv|xlsx|html|eml (default: from extension)")
		sample := fs.Int("sample", 200, "rows to sample")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--input is required"))
		}
		table, err := pipeline.ExtractTableFromInput(inputType(*inType, *input), *input)
		must(err)
		res := pipeline.DetectColumns(table, *sample)
		fmt.Printf("rows=%d id=%s\n", len(table.Rows), res.IDColumn)
		for _, c := range res.Columns {
			mark := " "
			if c.Packed {
				mark = "*"
			}
			fmt.Printf("%s %-32s %.2f\n", mark, c.Name, c.Score)
		}
		return
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	switch cmd {
	case "normalize":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "input file path")
		inType := fs.String("type", "", "csv|xlsx|html|eml (default: from extension)")
		preset := fs.String("preset", "participants", "preset name")
		output := fs.String("output", "", "output .xlsx or .csv path, - for csv on stdout")
		strict := fs.Bool("strict", cfg.NormalizeStrict, "fail on malformed segments")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--input is required"))
		}
		cfg.NormalizeStrict = *strict

		processor, err := pipeline.NewProcessingService(db, cfg, log, nil)
		must(err)
		res, err := processor.ProcessFile(inputType(*inType, *input), *input, *preset)
		must(err)
		if *output != "" {
			must(writeOutput(res, *output))
		}
		st := res.Stats
		fmt.Printf("normalize done dataset=%d preset=%s parents=%d contributing=%d subRecords=%d partial=%d malformed=%d duplicates=%d stored=%t\n",
			res.DatasetID, res.Preset, st.ParentRows, st.ContributingParents, st.SubRecords, st.PartialSubRecords, st.MalformedSegments, st.DuplicateIndices, res.Stored)
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		dataset := fs.String("dataset", "", "dataset name (the input path used with normalize)")
		preset := fs.String("preset", "participants", "preset name")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*dataset) == "" || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--dataset and --out are required"))
		}
		processor, err := pipeline.NewProcessingService(db, cfg, log, nil)
		must(err)
		table, err := processor.LoadStored(*dataset, *preset)
		must(err)
		must(pipeline.ExportSubRecordsToXLSX(table, *out))
		fmt.Printf("exported %d sub-records to %s\n", len(table.Records), *out)
	case "summary":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		dataset := fs.String("dataset", "", "dataset name")
		preset := fs.String("preset", "participants", "preset name")
		by := fs.String("by", "", "comma separated fields to group by")
		where := fs.String("where", "", "filters as field=v1|v2;field2=v3")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*dataset) == "" || strings.TrimSpace(*by) == "" {
			must(fmt.Errorf("--dataset and --by are required"))
		}
		processor, err := pipeline.NewProcessingService(db, cfg, log, nil)
		must(err)
		table, err := processor.LoadStored(*dataset, *preset)
		must(err)
		criteria, err := parseCriteria(*where)
		must(err)
		selected := report.Filter(table, criteria)
		fields := splitList(*by)
		must(report.RenderCounts(os.Stdout, fields, report.CountBy(selected, fields...)))
		if len(table.IdentityFields) > 0 {
			ids := report.ParentIDs(selected, table.IdentityFields[0])
			fmt.Printf("sub-records=%d parents=%d\n", len(selected.Records), len(ids))
		}
	case "datasets":
		rows, err := db.ListDatasets()
		must(err)
		for _, ds := range rows {
			fmt.Printf("%d %s type=%s rows=%d hash=%s loaded=%s\n", ds.ID, ds.Name, ds.InputType, ds.Rows, ds.Hash, ds.LoadedAt)
		}
	case "runs":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 20, "max runs")
		_ = fs.Parse(os.Args[2:])
		runs, err := db.ListRuns(*limit)
		must(err)
		last, err := db.GetMetadata("last_run")
		must(err)
		names := map[int]string{}
		for _, r := range runs {
			name, ok := names[r.DatasetID]
			if !ok {
				ds, err := db.GetDatasetByID(r.DatasetID)
				must(err)
				if ds != nil {
					name = ds.Name
				}
				names[r.DatasetID] = name
			}
			mark := " "
			if last != nil && *last == r.TraceID {
				mark = "*"
			}
			fmt.Printf("%s %s dataset=%s preset=%s subRecords=%d malformed=%d totalMs=%.0f at=%s\n",
				mark, r.TraceID, name, r.Preset, r.Counts["subRecords"], r.Counts["malformedSegments"], r.Timings["totalMs"], r.CreatedAt)
		}
	default:
		log.Debug("unknown command", zap.String("cmd", cmd))
		usage()
		os.Exit(1)
	}
}

func inputType(flagValue, path string) string {
	if t := strings.TrimSpace(flagValue); t != "" {
		return t
	}
	return pipeline.InputTypeFromPath(path)
}

func writeOutput(res pipeline.ProcessResult, output string) error {
	if output == "-" {
		return pipeline.ExportSubRecordsToCSV(res.Table, os.Stdout)
	}
	if strings.EqualFold(filepath.Ext(output), ".csv") {
		if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
			return err
		}
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		if err := pipeline.ExportSubRecordsToCSV(res.Table, f); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}
	return pipeline.ExportSubRecordsToXLSX(res.Table, output)
}

func parseCriteria(raw string) (report.Criteria, error) {
	criteria := report.Criteria{}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, values, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(field) == "" {
			return nil, fmt.Errorf("bad filter %q, want field=v1|v2", part)
		}
		criteria[strings.TrimSpace(field)] = strings.Split(values, "|")
	}
	return criteria, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func usage() {
	fmt.Println("usage: dashnorm <command>")
	fmt.Println("commands:")
	fmt.Println("  normalize --input=... [--type=csv|xlsx|html|eml] --preset=participants [--output=out.xlsx|out.csv|-] [--strict]")
	fmt.Println("  detect --input=... [--type=...] [--sample=200]")
	fmt.Println("  export:xlsx --dataset=... --preset=participants --out=./out/participants.xlsx")
	fmt.Println("  summary --dataset=... --preset=participants --by=gender[,age_group] [--where=state=Ohio|Texas]")
	fmt.Println("  datasets")
	fmt.Println("  runs [--limit=20]")
	fmt.Println("  presets")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
