package perflog

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// EchoHook mirrors selected log levels to the operator's terminal. The
// session logger itself writes nowhere; the detail hook owns the file and
// this hook owns the console, so verbose mode only widens what the console
// sees without changing what lands on disk.
type EchoHook struct {
	out       io.Writer
	formatter log.Formatter
	levels    []log.Level
}

// NewEchoHook returns a console hook. Warnings and errors always echo;
// verbose adds info and debug lines.
func NewEchoHook(verbose bool) *EchoHook {
	levels := []log.Level{log.ErrorLevel, log.WarnLevel}
	if verbose {
		levels = append(levels, log.InfoLevel, log.DebugLevel)
	}
	return &EchoHook{
		out:       os.Stderr,
		formatter: &log.TextFormatter{FullTimestamp: true},
		levels:    levels,
	}
}

// Levels reports which entries reach the console.
func (h *EchoHook) Levels() []log.Level { return h.levels }

// Fire writes one formatted entry to the console.
func (h *EchoHook) Fire(entry *log.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.out.Write(line)
	return err
}
