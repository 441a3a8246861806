package main

import (
	"context"
	"io"

	"github.com/jcorbin/waforthc/internal/backend"
	"github.com/jcorbin/waforthc/internal/capture"
	"github.com/jcorbin/waforthc/internal/config"
	"github.com/jcorbin/waforthc/internal/panicerr"
)

// New creates a Compiler.
func New(opts ...Option) *Compiler {
	var c Compiler
	c.apply(opts...)
	return &c
}

// Compile bootstraps the core over the Forth program in infile, and writes
// the linked result to outfile.
func (c *Compiler) Compile(ctx context.Context, infile, outfile string) error {
	return panicerr.Recover("compile", func() error {
		return c.compile(ctx, infile, outfile)
	})
}

// Link writes the linked result of a run saved by WithSaveRun to outfile,
// without bootstrapping again.
func (c *Compiler) Link(ctx context.Context, runfile, outfile string) error {
	return panicerr.Recover("link", func() error {
		res, err := capture.Load(runfile)
		if err != nil {
			return err
		}
		core, err := c.loadCore()
		if err != nil {
			return err
		}
		return c.link(ctx, core, runfile, res, outfile)
	})
}

func WithOutput(w io.Writer) Option           { return withOutput(w) }
func WithErrors(w io.Writer) Option           { return withErrors(w) }
func WithDump(w io.Writer) Option             { return withDump(w) }
func WithConfig(cfg config.Config) Option     { return withConfig(cfg) }
func WithCore(core []byte) Option             { return coreOption(core) }
func WithInit(program string) Option          { return initOption(program) }
func WithSaveRun(path string) Option          { return saveRunOption(path) }
func WithReport(path string) Option           { return reportOption(path) }
func WithRunner(runner backend.Runner) Option { return runnerOption{runner} }

func WithLogf(logfn func(mess string, args ...interface{})) Option { return withLogfn(logfn) }
