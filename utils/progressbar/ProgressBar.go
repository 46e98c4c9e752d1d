// Package progressbar renders a textual progress bar for long-running
// training loops.
package progressbar

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Bar tracks progress through a fixed step budget and renders it as a
// fixed-width terminal bar with a step rate and a completion estimate.
// A Bar is driven synchronously by the loop that owns it and is not
// safe for concurrent use.
type Bar struct {
	width   int
	total   int
	current int
	start   time.Time
	line    strings.Builder
}

// New returns a new Bar of the given character width tracking total
// steps
func New(width, total int) *Bar {
	return &Bar{
		width: width,
		total: total,
		start: time.Now(),
	}
}

// Increment records that another step completed
func (b *Bar) Increment() {
	if b.current < b.total {
		b.current++
	}
}

// Display redraws the bar in place on the current terminal line. Once
// the budget is exhausted a trailing newline is printed so that later
// output starts on a fresh line.
func (b *Bar) Display() {
	b.line.Reset()

	fraction := float64(b.current) / float64(b.total)
	filled := int(math.Round(fraction * float64(b.width)))

	b.line.WriteString("\r[")
	b.line.WriteString(strings.Repeat("=", filled))
	b.line.WriteString(strings.Repeat(" ", b.width-filled))
	b.line.WriteString("] ")
	fmt.Fprintf(&b.line, "%.1f%% (%d/%d)", fraction*100.0, b.current,
		b.total)

	elapsed := time.Since(b.start).Seconds()
	if elapsed > 0 && b.current > 0 {
		rate := float64(b.current) / elapsed
		left := float64(b.total-b.current) / rate
		eta := time.Duration(left * float64(time.Second))
		fmt.Fprintf(&b.line, " %.0f steps/s eta %v", rate,
			eta.Round(time.Second))
	}
	if b.current >= b.total {
		b.line.WriteString("\n")
	}

	fmt.Print(b.line.String())
}
