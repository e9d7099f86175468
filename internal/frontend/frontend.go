// Package frontend defines the capability set the update engine needs
// from a user-facing surface — notify, fatal, ask, and progress — so
// the engine never depends on a specific presentation. Only a terminal
// implementation lives here; a graphical frontend is out of scope (see
// the root spec's non-goals) and would satisfy the same interface.
package frontend

import "context"

// Frontend is every capability the engine needs from a presentation
// layer. Fatal must not return to its caller.
type Frontend interface {
	// Notify prints an informational message.
	Notify(msg string)

	// Fatal reports a terminating error and ends the process. It never
	// returns.
	Fatal(msg string)

	// Ask prompts the user for a string (used only when no manifest URL
	// was supplied any other way) and returns ok=false if the user gave
	// no answer.
	Ask(ctx context.Context, prompt string) (answer string, ok bool)

	// Progress acquires a scope-bounded progress reporter for an
	// operation with the given title. total is the expected unit count,
	// or 0 if unknown. The caller must call Release on the returned
	// reporter, typically via defer, on every exit path.
	Progress(title string, total int64, unit string) ProgressReporter

	// SetBranding is called once, after manifest validation, with the
	// manifest's brand name.
	SetBranding(brand string)
}

// ProgressReporter tracks one scoped unit of progress. Release must be
// safe to call more than once.
type ProgressReporter interface {
	// Update advances the reporter by n units (default 1 via Update(1)
	// at call sites that don't track partial progress).
	Update(n int64)

	// Set sets the reporter's absolute position.
	Set(value int64)

	// Status sets a short status string shown alongside the progress
	// display.
	Status(text string)

	// Release ends this reporter's scope. Safe to call multiple times.
	Release()
}
