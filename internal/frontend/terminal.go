package frontend

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// logInterval is the minimum time between progress log lines when
// stderr is not a terminal — matching the cadence a piped-to-a-logfile
// run should use instead of a carriage-return spinner.
const logInterval = 2 * time.Second

// Terminal is the console Frontend implementation: a plain, unadorned
// reporter that branches its progress presentation on whether stderr is
// a terminal, the way the teacher's CLI branches log-vs-status output
// on terminal detection.
type Terminal struct {
	out    io.Writer
	in     *bufio.Scanner
	isTTY  bool
	quiet  bool
	brand  string
	logger *slog.Logger
}

// NewTerminal creates a Terminal writing status to stderr and reading
// prompts from stdin. quiet suppresses Notify output (but never Fatal).
func NewTerminal(quiet bool, logger *slog.Logger) *Terminal {
	if logger == nil {
		logger = slog.Default()
	}

	return &Terminal{
		out:    os.Stderr,
		in:     bufio.NewScanner(os.Stdin),
		isTTY:  isatty.IsTerminal(os.Stderr.Fd()),
		quiet:  quiet,
		logger: logger,
	}
}

func (t *Terminal) Notify(msg string) {
	if t.quiet {
		return
	}

	fmt.Fprintln(t.out, msg)
}

func (t *Terminal) Fatal(msg string) {
	fmt.Fprintln(t.out, "fatal:", msg)
	os.Exit(1)
}

func (t *Terminal) Ask(ctx context.Context, prompt string) (string, bool) {
	fmt.Fprint(t.out, prompt)

	type result struct {
		line string
		ok   bool
	}

	ch := make(chan result, 1)

	go func() {
		if !t.in.Scan() {
			ch <- result{}
			return
		}

		line := strings.TrimSpace(t.in.Text())
		ch <- result{line: line, ok: line != ""}
	}()

	select {
	case <-ctx.Done():
		return "", false
	case r := <-ch:
		return r.line, r.ok
	}
}

func (t *Terminal) Progress(title string, total int64, unit string) ProgressReporter {
	out := t.out
	if t.quiet {
		out = io.Discard
	}

	p := &terminalProgress{
		out:     out,
		title:   title,
		total:   total,
		unit:    unit,
		isTTY:   t.isTTY,
		logger:  t.logger,
		lastLog: time.Now(),
	}

	if !t.quiet && t.isTTY {
		p.render()
	}

	return p
}

func (t *Terminal) SetBranding(brand string) {
	t.brand = brand
	t.Notify(fmt.Sprintf("%s update", brand))
}

// terminalProgress is the console ProgressReporter: a carriage-return
// line on a terminal, rate-limited log lines otherwise.
type terminalProgress struct {
	mu      sync.Mutex
	out     io.Writer
	title   string
	total   int64
	unit    string
	value   int64
	status  string
	isTTY   bool
	logger  *slog.Logger
	lastLog time.Time
	done    bool
}

func (p *terminalProgress) Update(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.value += n
	p.reportLocked()
}

func (p *terminalProgress) Set(value int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.value = value
	p.reportLocked()
}

func (p *terminalProgress) Status(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = text
	p.reportLocked()
}

func (p *terminalProgress) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done {
		return
	}

	p.done = true

	if p.isTTY {
		fmt.Fprintln(p.out)
	}
}

func (p *terminalProgress) reportLocked() {
	if p.done {
		return
	}

	if p.isTTY {
		p.render()
		return
	}

	if time.Since(p.lastLog) < logInterval {
		return
	}

	p.lastLog = time.Now()
	p.logger.Info("progress", slog.String("title", p.title), slog.Int64("value", p.value),
		slog.Int64("total", p.total), slog.String("status", p.status))
}

// render must be called with mu held (or before any other goroutine can
// reach this reporter, as Terminal.Progress's initial call does).
func (p *terminalProgress) render() {
	if p.total > 0 {
		fmt.Fprintf(p.out, "\r%s: %d/%d %s %s", p.title, p.value, p.total, p.unit, p.status)
		return
	}

	fmt.Fprintf(p.out, "\r%s: %d %s %s", p.title, p.value, p.unit, p.status)
}
