package vault

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"github.com/provara-protocol/provara/internal/canonical"
	"github.com/provara-protocol/provara/internal/event"
	"github.com/provara-protocol/provara/internal/redaction"
	"github.com/provara-protocol/provara/internal/verrors"
)

// EventsFile is the append-only event log's path within a vault.
const EventsFile = "events/events.ndjson"

// Writer appends canonical-JSON events to events.ndjson under an
// exclusive OS advisory lock, fsyncing before releasing it. Readers
// never need a lock: each line is written atomically and flushed
// before the writer gives up the lock, so a reader always sees a
// consistent prefix.
type Writer struct {
	f      *os.File
	sealed bool
}

// OpenWriter opens (creating if necessary) the events log for append.
// It scans any existing content once for a vault seal event, so
// subsequent Append calls can refuse writes to a sealed vault without
// re-reading the whole log each time.
func OpenWriter(path string) (*Writer, error) {
	if existing, err := ReadEvents(path); err == nil {
		if redaction.IsSealed(existing) {
			f, ferr := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if ferr != nil {
				return nil, ferr
			}
			return &Writer{f: f, sealed: true}, nil
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{f: f}, nil
}

// Append writes one signed event as a single canonical-JSON line. It
// refuses to write anything to a sealed vault.
func (w *Writer) Append(e *event.Event) error {
	if w.sealed {
		return verrors.Newf(verrors.CodeVaultSealed, "vault is sealed, refusing to append event %s", e.EventID).WithSection("4.J")
	}

	if err := lockFile(w.f); err != nil {
		return err
	}
	defer unlockFile(w.f)

	b, err := canonical.Bytes(e)
	if err != nil {
		return err
	}
	if _, err := w.f.Write(append(b, '\n')); err != nil {
		return err
	}
	if err := w.f.Sync(); err != nil {
		return err
	}

	if e.Type == redaction.SealType {
		w.sealed = true
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error { return w.f.Close() }

// ReadEvents parses every event line in path, in file order. Blank
// (whitespace-only) lines are allowed and skipped.
func ReadEvents(path string) ([]*event.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []*event.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var e event.Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, verrors.Newf(verrors.CodeVaultStructureInvalid, "malformed event at line %d: %v", lineNo, err).WithSection("6")
		}
		events = append(events, &e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
