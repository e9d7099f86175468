package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

func main() {
	cmd := newRootCmd()
	err := cmd.Execute()

	pauseBeforeExit()

	if err != nil {
		exitOnError(err)
	}
}

// pauseBeforeExit waits for a keypress before the process exits, unless
// --nopause was given or stdin isn't a terminal — a double-clicked
// console updater would otherwise close its window before the user can
// read the final status line.
func pauseBeforeExit() {
	if flagNoPause || !isatty.IsTerminal(os.Stdin.Fd()) {
		return
	}

	fmt.Fprint(os.Stderr, "press Enter to continue...")
	bufio.NewScanner(os.Stdin).Scan()
}

func exitOnError(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
