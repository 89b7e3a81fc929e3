package toolutils

import (
	"fmt"
	"io"
	"strings"
)

// StatusPrinter prints right-aligned key=value lines.
type StatusPrinter struct {
	File    io.Writer
	Padding int
}

func (s StatusPrinter) Print(key string, value any) {
	pad := max(s.Padding-len(key), 0)
	fmt.Fprintf(s.File, "%s%s=%v\n", strings.Repeat(" ", pad), key, value)
}

// Section prints a section heading.
func (s StatusPrinter) Section(title string) {
	fmt.Fprintf(s.File, "%s:\n", title)
}
