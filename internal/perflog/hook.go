package perflog

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// DetailHook mirrors logrus entries into the session's detailed log file as
// "[timestamp] [LEVEL] message" lines. The hook owns formatting only; the
// file handle belongs to the Session.
type DetailHook struct {
	session *Session
}

// NewDetailHook returns a hook writing into the session's detailed log.
func NewDetailHook(s *Session) *DetailHook {
	return &DetailHook{session: s}
}

// Levels reports the levels the hook captures. Everything down to debug is
// written to file; console visibility is controlled by the logger itself.
func (h *DetailHook) Levels() []log.Level {
	return []log.Level{
		log.ErrorLevel,
		log.WarnLevel,
		log.InfoLevel,
		log.DebugLevel,
	}
}

// Fire appends one formatted line to the detailed log.
func (h *DetailHook) Fire(entry *log.Entry) error {
	if h.session == nil || h.session.detail == nil {
		return nil
	}
	msg := entry.Message
	if len(entry.Data) > 0 {
		parts := make([]string, 0, len(entry.Data))
		for k, v := range entry.Data {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
		msg = msg + " (" + strings.Join(parts, " ") + ")"
	}
	_, err := fmt.Fprintf(h.session.detail, "[%s] [%s] %s\n",
		entry.Time.Format(timestampLayout),
		strings.ToUpper(entry.Level.String()),
		msg)
	return err
}
