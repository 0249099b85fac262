package monitor

import (
	"fmt"
	"os"
	"time"

	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"
)

var theme = progressbar.Theme{
	Saucer:        "[green]=[reset]",
	SaucerHead:    "[green]>[reset]",
	SaucerPadding: " ",
	BarStart:      "[",
	BarEnd:        "]",
}

// Console renders a single live status line on the operator's terminal. It
// switches from spinner to bounded bar once the external job publishes a
// total item count.
type Console struct {
	bar   *progressbar.ProgressBar
	total int64
}

// NewConsole creates the live status line, starting in spinner mode since
// the total is usually unknown until the job enumerates its items.
func NewConsole() *Console {
	return &Console{bar: newBar(-1)}
}

func newBar(total int64) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(ansi.NewAnsiStdout()),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(theme),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
	)
}

// Update refreshes the status line with this tick's observation.
func (c *Console) Update(sample StatusSample, rate float64) {
	if sample.ItemsTotal > 0 && sample.ItemsTotal != c.total {
		c.total = sample.ItemsTotal
		c.bar = newBar(sample.ItemsTotal)
	}
	c.bar.Describe(fmt.Sprintf("[cyan]%s[reset] %.1f items/s elapsed %s",
		sample.Phase, rate, sample.Elapsed.Round(time.Second)))
	c.bar.Set64(sample.ItemsDone)
}

// Finish terminates the status line, leaving the terminal on a fresh row.
func (c *Console) Finish() {
	c.bar.Finish()
}
