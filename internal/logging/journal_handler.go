package logging

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal entry, for journalctl -t.
const SyslogIdentifier = "vspfilter"

// JournalHandler is a slog.Handler that sends records to the systemd
// journal as structured fields, so journalctl MODULE=vsp works.
type JournalHandler struct {
	level slog.Leveler
	// attrs added with WithAttrs, already rendered
	base map[string]string
	// open groups joined as "GROUP_"
	prefix string
}

// NewJournalHandler creates a journal handler. A *slog.LevelVar keeps the
// level adjustable at runtime.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{
		level: level,
		base:  map[string]string{"SYSLOG_IDENTIFIER": SyslogIdentifier},
	}
}

// Enabled implements slog.Handler.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	if err := journal.Send(r.Message, priority(r.Level), h.recordFields(r)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to send to journal: %v\n", err)
		return err
	}
	return nil
}

// recordFields merges the handler fields with the record attributes.
// MESSAGE and PRIORITY are added by journal.Send.
func (h *JournalHandler) recordFields(r slog.Record) map[string]string {
	fields := maps.Clone(h.base)
	r.Attrs(func(a slog.Attr) bool {
		putAttr(fields, h.prefix, a)
		return true
	})
	return fields
}

// WithAttrs implements slog.Handler.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	base := maps.Clone(h.base)
	for _, a := range attrs {
		putAttr(base, h.prefix, a)
	}
	return &JournalHandler{level: h.level, base: base, prefix: h.prefix}
}

// WithGroup implements slog.Handler.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &JournalHandler{level: h.level, base: h.base, prefix: h.prefix + fieldName(name) + "_"}
}

func priority(level slog.Level) journal.Priority {
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

// putAttr renders a into fields. Groups flatten to GROUP_KEY.
func putAttr(fields map[string]string, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if v.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner += fieldName(a.Key) + "_"
		}
		for _, ga := range v.Group() {
			putAttr(fields, inner, ga)
		}
		return
	}

	key := prefix + fieldName(a.Key)
	switch v.Kind() {
	case slog.KindInt64:
		fields[key] = strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		fields[key] = strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		fields[key] = strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case slog.KindBool:
		fields[key] = strconv.FormatBool(v.Bool())
	case slog.KindTime:
		fields[key] = v.Time().Format(time.RFC3339Nano)
	default:
		fields[key] = v.String()
	}
}

// fieldName upper-cases key; journald rejects lower case field names.
func fieldName(key string) string {
	return strings.ToUpper(key)
}

// IsJournalAvailable checks if systemd journal is available.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
