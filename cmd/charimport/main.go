// Command charimport imports character rosters from the command line.
//
// It ingests one file (or stdin with -file -), or every supported file in a
// directory, and prints the outcome as JSON. With -preview nothing is
// stored. A fatal ingestion failure exits 1 after printing remediation
// hints to stderr.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/charimport/internal/config"
	"github.com/JonMunkholm/charimport/internal/core"
	"github.com/JonMunkholm/charimport/internal/ingest"
	"github.com/JonMunkholm/charimport/internal/logging"
	"github.com/JonMunkholm/charimport/internal/store"
)

func main() {
	// .env values never override the shell for the CLI
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	file         string
	dir          string
	dialect      string
	dialectsFile string
	expected     int
	db           string
	preview      bool
	standardize  bool
	seed         uint64
	logLevel     string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("charimport", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.file, "file", "", "file to import, - for stdin")
	fs.StringVar(&o.dir, "dir", "", "import every supported file in this directory")
	fs.StringVar(&o.dialect, "dialect", core.DialectAuto, "dialect name, or auto to detect")
	fs.StringVar(&o.dialectsFile, "dialects", os.Getenv("IMPORT_DIALECTS_FILE"), "TOML file with extra dialects")
	fs.IntVar(&o.expected, "expected", 0, "expected record count for the low-yield check")
	fs.StringVar(&o.db, "db", envOr("DATABASE_URL", "sqlite://charimport.db"), "database url")
	fs.BoolVar(&o.preview, "preview", false, "parse and report without storing")
	fs.BoolVar(&o.standardize, "standardize", true, "standardize delimiters for dialects that enable it")
	fs.Uint64Var(&o.seed, "seed", 0, "seed for default image selection, 0 for random")
	fs.StringVar(&o.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "log level")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	if (o.file == "") == (o.dir == "") {
		return o, errors.New("exactly one of -file or -dir is required")
	}
	if o.dir != "" && o.preview {
		return o, errors.New("-preview works with -file only")
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "charimport:", err)
		return 2
	}

	logger := logging.SetupWriter(stderr, o.logLevel, "text")

	if _, err := config.RegisterDialects(o.dialectsFile); err != nil {
		fmt.Fprintln(stderr, "charimport:", err)
		return 1
	}

	opts := core.Options{ImageSeed: o.seed, DisableStandardize: !o.standardize}

	var st core.Store
	if o.preview {
		st = previewStore{}
	} else {
		st, err = store.Open(ctx, o.db, store.WithLogger(logger))
		if err != nil {
			fmt.Fprintln(stderr, "charimport:", err)
			return 1
		}
		defer st.Close()
	}
	svc := core.NewService(st, opts)

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")

	if o.dir != "" {
		results, err := svc.ImportDir(ctx, o.dir)
		if encErr := enc.Encode(results); encErr != nil {
			fmt.Fprintln(stderr, "charimport:", encErr)
			return 1
		}
		if err != nil {
			fmt.Fprintln(stderr, "charimport:", err)
			return 1
		}
		for _, r := range results {
			if r.Error != "" {
				return 1
			}
		}
		return 0
	}

	req, err := readRequest(o, stdin)
	if err != nil {
		fmt.Fprintln(stderr, "charimport:", err)
		return 1
	}

	var out *core.Outcome
	if o.preview {
		out, err = svc.Preview(ctx, req)
	} else {
		out, err = svc.Import(ctx, req)
	}
	if out != nil {
		if encErr := enc.Encode(out); encErr != nil {
			fmt.Fprintln(stderr, "charimport:", encErr)
			return 1
		}
	}
	if err != nil {
		reportFailure(stderr, err)
		return 1
	}
	if out.LowYield {
		fmt.Fprintf(stderr, "warning: only %d of the expected %d records were accepted\n", out.Report.Accepted, o.expected)
	}
	return 0
}

func readRequest(o options, stdin io.Reader) (core.ImportRequest, error) {
	req := core.ImportRequest{Dialect: o.dialect, Expected: o.expected}

	var err error
	if o.file == "-" {
		req.FileName = "stdin"
		req.Data, err = io.ReadAll(stdin)
	} else {
		req.FileName = filepath.Base(o.file)
		req.Data, err = os.ReadFile(o.file)
	}
	if err != nil {
		return req, fmt.Errorf("read input: %w", err)
	}
	return req, nil
}

func reportFailure(w io.Writer, err error) {
	msg := core.MapError(err)
	fmt.Fprintf(w, "import failed [%s]: %s\n", msg.Code, msg.Message)
	fmt.Fprintf(w, "  cause: %v\n", err)
	for _, hint := range ingest.Remediation(err) {
		fmt.Fprintf(w, "  hint: %s\n", hint)
	}
	slog.Debug("import failed", "error", err)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
