package loggers

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
)

// Terminal logs metric rows as labelled key = value lines with a
// timestamp prefix.
type Terminal struct {
	logger *log.Logger
}

// NewTerminal returns a terminal logger writing to out, or to standard
// output when out is nil. The label prefixes every line.
func NewTerminal(label string, out io.Writer) *Terminal {
	if out == nil {
		out = os.Stdout
	}
	return &Terminal{
		logger: log.New(out, "["+label+"] ", log.LstdFlags),
	}
}

// Write logs values as a single key = value line in sorted key order
func (t *Terminal) Write(values map[string]float64) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var line strings.Builder
	for i, key := range keys {
		if i > 0 {
			line.WriteString(", ")
		}
		fmt.Fprintf(&line, "%v = %v", key, values[key])
	}
	t.logger.Print(line.String())

	return nil
}

// Close does nothing
func (t *Terminal) Close() error {
	return nil
}
