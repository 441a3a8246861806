package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/jcorbin/waforthc/internal/capture"
	"github.com/jcorbin/waforthc/internal/link"
)

type runDumper struct {
	input  string
	output string
	res    *capture.RunResult
	linked *link.Linked
	out    io.Writer

	addrWidth int
}

func (dump runDumper) dump() {
	fmt.Fprintf(dump.out, "# Run Dump\n")
	fmt.Fprintf(dump.out, "  input: %v\n", dump.input)
	fmt.Fprintf(dump.out, "  dict: [%v, %v) latest=%v\n", dump.res.Start, dump.res.End(), dump.res.Latest)
	if dump.res.Bye {
		fmt.Fprintf(dump.out, "  ended by bye\n")
	}

	chain, complete, err := capture.Dictionary(dump.res.ReadU32, dump.res.Latest)
	if err != nil {
		fmt.Fprintf(dump.out, "  chain: %v (%v)\n", chain, err)
	} else if !complete {
		fmt.Fprintf(dump.out, "  chain: %v ...\n", chain)
	} else {
		fmt.Fprintf(dump.out, "  chain: %v\n", chain)
	}

	dump.dumpWords()
	dump.dumpImage()
}

func (dump *runDumper) dumpWords() {
	fmt.Fprintf(dump.out, "# Words (table %v => %v)\n", dump.linked.TableBefore, dump.linked.TableAfter)
	for _, w := range dump.linked.Words {
		fmt.Fprintf(dump.out, "  #%v %v func=%v slot=%v size=%v\n", w.Index, w.Name, w.Func, w.Slot, w.Size)
	}
}

// dumpImage prints the captured dictionary image, one 32-bit cell per
// line, skipping zero cells.
func (dump *runDumper) dumpImage() {
	if dump.addrWidth == 0 {
		dump.addrWidth = len(strconv.Itoa(int(dump.res.End()))) + 1
	}
	fmt.Fprintf(dump.out, "# Dictionary @%v\n", dump.res.Start)
	for addr := dump.res.Start; addr < dump.res.End(); addr += 4 {
		val, ok := dump.res.ReadU32(addr)
		if !ok {
			fmt.Fprintf(dump.out, "  @% *v % x\n", dump.addrWidth, addr, dump.res.Image[addr-dump.res.Start:])
			break
		}
		if val != 0 {
			fmt.Fprintf(dump.out, "  @% *v %v\n", dump.addrWidth, addr, val)
		}
	}
}

type report struct {
	Input      string      `yaml:"input"`
	Output     string      `yaml:"output"`
	Bye        bool        `yaml:"bye,omitempty"`
	Dictionary dictReport  `yaml:"dictionary"`
	Table      tableReport `yaml:"table"`
	Words      []link.Word `yaml:"words"`
}

type dictReport struct {
	Start    uint32   `yaml:"start"`
	End      uint32   `yaml:"end"`
	Latest   uint32   `yaml:"latest"`
	Chain    []uint32 `yaml:"chain,flow"`
	Complete bool     `yaml:"complete"`
}

type tableReport struct {
	Before uint32 `yaml:"before"`
	After  uint32 `yaml:"after"`
}

func (dump runDumper) report() (report, error) {
	chain, complete, err := capture.Dictionary(dump.res.ReadU32, dump.res.Latest)
	if err != nil {
		return report{}, err
	}
	return report{
		Input:  dump.input,
		Output: dump.output,
		Bye:    dump.res.Bye,
		Dictionary: dictReport{
			Start:    dump.res.Start,
			End:      dump.res.End(),
			Latest:   dump.res.Latest,
			Chain:    chain,
			Complete: complete,
		},
		Table: tableReport{
			Before: dump.linked.TableBefore,
			After:  dump.linked.TableAfter,
		},
		Words: dump.linked.Words,
	}, nil
}

func (dump runDumper) writeReport(name string) (rerr error) {
	rep, err := dump.report()
	if err != nil {
		return err
	}
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); rerr == nil {
			rerr = err
		}
	}()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return enc.Close()
}
