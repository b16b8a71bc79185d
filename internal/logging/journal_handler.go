package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// JournalIdentifier is the SYSLOG_IDENTIFIER attached to every journal entry.
const JournalIdentifier = "voicebox"

// journalFailed is set after the first failed send so a missing journald
// socket is reported once instead of on every record.
var journalFailed atomic.Bool

// JournalHandler writes records to the systemd journal. Attributes become
// upper case journal fields, groups are joined with '_', so
// logger.With("pid", 42) ends up as PID=42 and can be filtered with
// journalctl -t voicebox PID=42.
type JournalHandler struct {
	level  slog.Leveler
	fields map[string]string // resolved WithAttrs fields
	prefix string            // group prefix ending in '_'
}

// NewJournalHandler creates a journal handler.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{level: level, fields: map[string]string{}}
}

func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	priority := mapLevelToPriority(r.Level)

	fields := make(map[string]string, len(h.fields)+r.NumAttrs()+2)
	for k, v := range h.fields {
		fields[k] = v
	}
	r.Attrs(func(attr slog.Attr) bool {
		addAttrToFields(fields, attr, h.prefix)
		return true
	})
	fields["SYSLOG_IDENTIFIER"] = JournalIdentifier
	fields["PRIORITY"] = strconv.Itoa(int(priority))

	if err := journal.Send(r.Message, priority, fields); err != nil {
		if journalFailed.CompareAndSwap(false, true) {
			fmt.Fprintf(os.Stderr, "voicebox: journal unavailable: %v\n", err)
		}
		return err
	}
	return nil
}

func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make(map[string]string, len(h.fields)+len(attrs))
	for k, v := range h.fields {
		fields[k] = v
	}
	for _, attr := range attrs {
		addAttrToFields(fields, attr, h.prefix)
	}
	return &JournalHandler{level: h.level, fields: fields, prefix: h.prefix}
}

func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &JournalHandler{level: h.level, fields: h.fields, prefix: h.prefix + journalKey(name) + "_"}
}

func mapLevelToPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

func addAttrToFields(fields map[string]string, attr slog.Attr, prefix string) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if attr.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix += journalKey(attr.Key) + "_"
		}
		for _, a := range attr.Value.Group() {
			addAttrToFields(fields, a, groupPrefix)
		}
		return
	}

	key := prefix + journalKey(attr.Key)
	switch attr.Value.Kind() {
	case slog.KindTime:
		fields[key] = attr.Value.Time().Format(time.RFC3339Nano)
	case slog.KindFloat64:
		fields[key] = strconv.FormatFloat(attr.Value.Float64(), 'f', -1, 64)
	default:
		fields[key] = attr.Value.String()
	}
}

// journalKey maps an attribute key to a valid journal field name: upper
// case letters, digits and '_', not starting with '_'.
func journalKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(key) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), "_")
	if out == "" {
		return "FIELD"
	}
	return out
}

// IsJournalAvailable checks if systemd journal is available.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
