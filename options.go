package main

import (
	"io"

	"github.com/jcorbin/waforthc/internal/backend"
	"github.com/jcorbin/waforthc/internal/config"
)

// Option customizes a Compiler.
type Option interface{ apply(c *Compiler) }

var defaults = []Option{
	withOutput(io.Discard),
	withErrors(io.Discard),
	withConfig(config.Default()),
}

func (c *Compiler) apply(opts ...Option) {
	for _, opt := range defaults {
		if opt != nil {
			opt.apply(c)
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(c)
		}
	}
}

type withLogfn func(mess string, args ...interface{})

func (logfn withLogfn) apply(c *Compiler) {
	c.logfn = logfn
}

type outputOption struct{ io.Writer }
type errorsOption struct{ io.Writer }
type dumpOption struct{ io.Writer }
type configOption config.Config
type coreOption []byte
type initOption string
type saveRunOption string
type reportOption string
type runnerOption struct{ backend.Runner }

func withOutput(w io.Writer) outputOption       { return outputOption{w} }
func withErrors(w io.Writer) errorsOption       { return errorsOption{w} }
func withDump(w io.Writer) dumpOption           { return dumpOption{w} }
func withConfig(cfg config.Config) configOption { return configOption(cfg) }

func (o outputOption) apply(c *Compiler)   { c.out = o.Writer }
func (o errorsOption) apply(c *Compiler)   { c.errs = o.Writer }
func (o dumpOption) apply(c *Compiler)     { c.dump = o.Writer }
func (cfg configOption) apply(c *Compiler) { c.cfg = config.Config(cfg) }
func (b coreOption) apply(c *Compiler)     { c.core = []byte(b) }
func (s initOption) apply(c *Compiler)     { c.init = []byte(s) }
func (p saveRunOption) apply(c *Compiler)  { c.saveRun = string(p) }
func (p reportOption) apply(c *Compiler)   { c.report = string(p) }
func (r runnerOption) apply(c *Compiler)   { c.runner = r.Runner }
