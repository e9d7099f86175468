package frontend

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTerminal(quiet bool) (*Terminal, *bytes.Buffer) {
	var buf bytes.Buffer

	t := &Terminal{
		out:    &buf,
		in:     bufio.NewScanner(strings.NewReader("")),
		isTTY:  false,
		quiet:  quiet,
		logger: slog.New(slog.NewTextHandler(&buf, nil)),
	}

	return t, &buf
}

func TestNotify_Quiet(t *testing.T) {
	term, buf := newTestTerminal(true)
	term.Notify("hello")
	assert.Empty(t, buf.String())
}

func TestNotify_NotQuiet(t *testing.T) {
	term, buf := newTestTerminal(false)
	term.Notify("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestSetBranding(t *testing.T) {
	term, buf := newTestTerminal(false)
	term.SetBranding("Acme")
	assert.Equal(t, "Acme", term.brand)
	assert.Contains(t, buf.String(), "Acme")
}

func TestProgress_NonTTY_ReleaseIsIdempotent(t *testing.T) {
	term, _ := newTestTerminal(false)

	p := term.Progress("extracting", 10, "files")
	p.Update(5)
	p.Set(7)
	p.Status("almost done")
	p.Release()
	p.Release() // must be safe to call twice
}

func TestProgress_RateLimitsNonTTYLogs(t *testing.T) {
	term, buf := newTestTerminal(false)

	p := term.Progress("extracting", 0, "files").(*terminalProgress)
	p.lastLog = time.Now()

	p.Update(1)
	require.Empty(t, buf.String())
}

func TestAsk_ContextCanceled(t *testing.T) {
	term, _ := newTestTerminal(false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := term.Ask(ctx, "manifest URL: ")
	assert.False(t, ok)
}
