package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/jcorbin/waforthc/internal/backend"
	"github.com/jcorbin/waforthc/internal/bootstrap"
	"github.com/jcorbin/waforthc/internal/capture"
	"github.com/jcorbin/waforthc/internal/config"
	"github.com/jcorbin/waforthc/internal/flushio"
	"github.com/jcorbin/waforthc/internal/link"
)

// Compiler compiles Forth programs ahead of time by running them on a core
// module, and linking what the run defined back into that core.
type Compiler struct {
	logging

	cfg  config.Config
	core []byte

	out  io.Writer
	errs io.Writer
	dump io.Writer

	init    []byte
	saveRun string
	report  string
	runner  backend.Runner
}

func (c *Compiler) loadCore() ([]byte, error) {
	if c.core != nil {
		return c.core, nil
	}
	path := c.cfg.CorePath()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading core module: %w", err)
	}
	c.logf("#", "core %v (%v bytes)", path, len(b))
	return b, nil
}

func (c *Compiler) compile(ctx context.Context, infile, outfile string) error {
	src, err := os.ReadFile(infile)
	if err != nil {
		return err
	}
	core, err := c.loadCore()
	if err != nil {
		return err
	}

	c.logf(">", "bootstrap %v (%v bytes)", infile, len(src))
	res, err := bootstrap.Run(ctx, core, infile, src, bootstrap.Options{
		Exports: bootstrap.Exports{
			Run:    c.cfg.Core.Run,
			Error:  c.cfg.Core.Error,
			Here:   c.cfg.Core.Here,
			Latest: c.cfg.Core.Latest,
		},
		HostModule: c.cfg.Core.HostModule,
		CoreName:   c.cfg.Core.Name,
		RunArg:     c.cfg.Core.RunArg,
		Output:     c.out,
		Errors:     c.errs,
		Logf:       c.logger("boot"),
	})
	if err != nil {
		return err
	}
	c.logf("<", "captured %v words, %v dictionary bytes @%v", len(res.Fragments), len(res.Image), res.Start)

	if err := c.link(ctx, core, infile, res, outfile); err != nil {
		return err
	}

	// the run is only saved once its output exists
	if c.saveRun != "" {
		if err := capture.Save(c.saveRun, res); err != nil {
			c.remove(outfile, c.report)
			return err
		}
		c.logf("#", "saved run to %v", c.saveRun)
	}
	return nil
}

func (c *Compiler) remove(names ...string) {
	for _, name := range names {
		if name == "" {
			continue
		}
		if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logf("!", "cleanup: %v", err)
		}
	}
}

func (c *Compiler) link(ctx context.Context, core []byte, input string, res *capture.RunResult, outfile string) error {
	linked, err := link.Merge(ctx, core, res, link.Options{
		Here:   c.cfg.Core.Here,
		Latest: c.cfg.Core.Latest,
		Logf:   c.logger("link"),
	})
	if err != nil {
		return err
	}

	dump := runDumper{
		input:  input,
		output: outfile,
		res:    res,
		linked: linked,
	}
	if c.dump != nil {
		out := flushio.NewWriteFlusher(c.dump)
		dump.out = out
		dump.dump()
		if err := out.Flush(); err != nil {
			return err
		}
	}

	native := &backend.Native{
		Toolchain: backend.Toolchain{
			Wasm2C:      c.cfg.Native.Wasm2C,
			CC:          c.cfg.Native.CC,
			IncludeDirs: c.cfg.Native.IncludeDirs,
			LibDirs:     c.cfg.Native.LibDirs,
			Libs:        c.cfg.Native.Libs,
			CFlags:      c.cfg.Native.CFlags,
		},
		Init:   c.init,
		Runner: c.runner,
		Logf:   c.logger("emit"),
	}
	if err := backend.ForPath(outfile, native).Emit(ctx, linked.Module, outfile); err != nil {
		return err
	}
	c.logf("#", "wrote %v", outfile)

	if c.report != "" {
		if err := dump.writeReport(c.report); err != nil {
			return err
		}
	}
	return nil
}

type logging struct {
	logfn func(mess string, args ...interface{})

	markWidth int
}

// logger returns a printf-style function logging under mark, or nil if
// logging is disabled.
func (log *logging) logger(mark string) func(mess string, args ...interface{}) {
	if log.logfn == nil {
		return nil
	}
	return func(mess string, args ...interface{}) {
		log.logf(mark, mess, args...)
	}
}

func (log *logging) logf(mark, mess string, args ...interface{}) {
	if log.logfn == nil {
		return
	}
	if n := log.markWidth - len(mark); n > 0 {
		mark = strings.Repeat(" ", n) + mark
	} else if n < 0 {
		log.markWidth = len(mark)
	}
	if len(args) > 0 {
		mess = fmt.Sprintf(mess, args...)
	}
	log.logfn("%v %v", mark, mess)
}
