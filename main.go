package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jcorbin/waforthc/internal/backend"
	"github.com/jcorbin/waforthc/internal/config"
	"github.com/jcorbin/waforthc/internal/logio"
)

func main() {
	ctx := context.Background()

	var log logio.Logger
	log.SetOutput(os.Stderr)

	var (
		outfile  string
		initProg string
		cfgPath  string
		corePath string
		saveRun  string
		report   string
		fromRun  bool
		trace    bool
	)
	flag.StringVar(&outfile, "o", "out", "output `file`; a .wasm suffix selects a module, anything else a native executable")
	flag.StringVar(&outfile, "output", "out", "same as -o")
	flag.StringVar(&initProg, "init", "", "`program` run at startup of a native executable; it is interactive otherwise")
	flag.StringVar(&cfgPath, "config", "", "configuration `file` (default ./"+config.FileName+" if present)")
	flag.StringVar(&corePath, "core", "", "core module `file`, overriding configuration")
	flag.StringVar(&saveRun, "save-run", "", "save the captured run to `file`")
	flag.BoolVar(&fromRun, "from-run", false, "link INPUT as a run saved by -save-run, instead of compiling it")
	flag.StringVar(&report, "report", "", "write a YAML link report to `file`")
	flag.BoolVar(&trace, "trace", false, "enable trace logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %v [options] INPUT\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}

	args := parseArgs(flag.CommandLine, os.Args[1:])
	if len(args) != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(cfgPath, corePath)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(log.ExitCode())
	}

	var opts = []Option{
		WithConfig(cfg),
		WithOutput(os.Stdout),
		WithErrors(os.Stderr),
		WithInit(initProg),
		WithSaveRun(saveRun),
		WithReport(report),
	}
	runner := backend.ExecRunner{Stdout: os.Stderr, Stderr: os.Stderr}
	if trace {
		opts = append(opts,
			WithLogf(log.Leveledf("TRACE")),
			WithDump(&logio.Writer{Logf: log.Leveledf("DUMP")}))
		runner.Logf = log.Leveledf("TRACE")
	}
	opts = append(opts, WithRunner(runner))
	comp := New(opts...)

	if fromRun {
		err = comp.Link(ctx, args[0], outfile)
	} else {
		err = comp.Compile(ctx, args[0], outfile)
	}
	log.ErrorIf(err)
	if hint := buildHint(err); hint != "" {
		log.Printf("NOTE", "%v", hint)
	}
	os.Exit(log.ExitCode())
}

// buildHint explains a native build tool failure, if err is one.
func buildHint(err error) string {
	var berr backend.BuildError
	if !errors.As(err, &berr) {
		return ""
	}
	if code := berr.ExitCode(); code >= 0 {
		return fmt.Sprintf("%v exited with status %v; rerun with -trace to see its command line", berr.Tool, code)
	}
	return fmt.Sprintf("%v could not be run; check the [native] section of %v", berr.Tool, config.FileName)
}

// parseArgs parses flags interspersed with positional arguments, returning
// the positional ones.
func parseArgs(fs *flag.FlagSet, args []string) (positional []string) {
	for {
		if err := fs.Parse(args); err != nil {
			return nil
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func loadConfig(cfgPath, corePath string) (cfg config.Config, err error) {
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
	} else {
		cfg, err = config.Find(".")
	}
	if err != nil {
		return cfg, err
	}
	if corePath != "" {
		if cfg.Core.Path, err = filepath.Abs(corePath); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}
