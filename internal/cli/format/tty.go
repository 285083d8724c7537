package format

import (
	"os"

	"golang.org/x/term"
)

// IsTTY reports whether stdout is an interactive terminal that accepts
// styling. NO_COLOR and TERM=dumb turn styling off.
func IsTTY() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if t := os.Getenv("TERM"); t == "dumb" || t == "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
