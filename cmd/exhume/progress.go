package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"

	"exhume/internal/extract"
)

// progressLine redraws a single status line on stderr when it is a terminal.
type progressLine struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	drawn   bool
}

func newProgressLine(w io.Writer) *progressLine {
	enabled := false
	if f, ok := w.(*os.File); ok {
		enabled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &progressLine{w: w, enabled: enabled}
}

func (p *progressLine) extraction(done, total int, stats extract.Stats) {
	p.draw(fmt.Sprintf("extracting %d/%d  files=%d errors=%d", done, total, stats.Extracted, stats.Errors))
}

func (p *progressLine) ingestion(done, total int) {
	p.draw(fmt.Sprintf("ingesting %d/%d", done, total))
}

func (p *progressLine) draw(line string) {
	if p == nil || !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "\r\033[K%s", line)
	p.drawn = true
}

// done terminates the status line so later output starts on a fresh row.
func (p *progressLine) done() {
	if p == nil || !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn {
		fmt.Fprintln(p.w)
		p.drawn = false
	}
}
