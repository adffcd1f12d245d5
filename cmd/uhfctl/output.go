package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/srg/uhfsession/internal/reader"
	"github.com/srg/uhfsession/session"
)

// printer writes command output, coloured only when w is a terminal.
type printer struct {
	w       io.Writer
	ok      *color.Color
	warn    *color.Color
	dim     *color.Color
	emph    *color.Color
	colored bool
}

func newPrinter(w io.Writer) *printer {
	p := &printer{
		w:    w,
		ok:   color.New(color.FgGreen, color.Bold),
		warn: color.New(color.FgYellow),
		dim:  color.New(color.Faint),
		emph: color.New(color.FgCyan),
	}
	p.colored = isTerminal(w)
	for _, c := range []*color.Color{p.ok, p.warn, p.dim, p.emph} {
		if p.colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *printer) status(format string, args ...any) {
	p.dim.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) success(format string, args ...any) {
	p.ok.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) warning(format string, args ...any) {
	p.warn.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) linef(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) peripherals(devs []reader.Peripheral) error {
	if len(devs) == 0 {
		p.linef("No readers discovered")
		return nil
	}

	w := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI")
	fmt.Fprintln(w, strings.Repeat("-", 48))
	for _, d := range devs {
		name := d.Name
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\n", name, d.Address, d.RSSI)
	}
	return w.Flush()
}

func (p *printer) tag(t session.Tag) {
	fmt.Fprintf(p.w, "%s %s  %s  %.1f dBm\n", p.ok.Sprint("+"), p.emph.Sprint(t.EPC), t.TID, t.RSSI)
}

func (p *printer) tags(tags []session.Tag) error {
	if len(tags) == 0 {
		p.linef("No tags read")
		return nil
	}

	w := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EPC\tTID\tRSSI\tCOUNT\tUSER MEMORY")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, t := range tags {
		fmt.Fprintf(w, "%s\t%s\t%.1f dBm\t%d\t%s\n", t.EPC, t.TID, t.RSSI, t.Count, t.UserMemory)
	}
	return w.Flush()
}
