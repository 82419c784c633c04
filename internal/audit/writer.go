package audit

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

var bundleNameCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// EventType labels the records written to a match's audit event log.
type EventType string

const (
	EventActionAccepted EventType = "action_accepted"
	EventActionRejected EventType = "action_rejected"
	EventActionFlagged  EventType = "action_flagged"
	EventGoal           EventType = "goal"
	EventLifecycle      EventType = "lifecycle"
	EventResult         EventType = "result"
)

// Manifest describes the audit bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version       int    `json:"version"`
	MatchID       string `json:"match_id"`
	CreatedAt     string `json:"created_at"`
	EventsPath    string `json:"events_path"`
	SnapshotsPath string `json:"snapshots_path"`
}

// Writer streams one match's audit trail to disk: a snappy-framed JSONL event
// log alongside a zstd stream of length-prefixed snapshot frames. The bundle
// backs the state-hash chain carried in the match result; gameplay never reads
// it back.
type Writer struct {
	mu           sync.Mutex
	dir          string
	now          func() time.Time
	eventFile    *os.File
	eventStream  *snappy.Writer
	snapshotFile *os.File
	snapshotZstd *zstd.Encoder
	closed       bool
}

// NewWriter prepares the bundle directory and opens the compressed sinks.
func NewWriter(root, matchID string, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("audit root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}

	cleaned := bundleNameCleaner.ReplaceAllString(matchID, "")
	if cleaned == "" {
		cleaned = "match"
	}
	created := clock().UTC()
	folder := fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z"))
	path := filepath.Join(root, folder)

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	eventsPath := filepath.Join(path, "events.jsonl.sz")
	snapshotsPath := filepath.Join(path, "snapshots.bin.zst")
	manifestPath := filepath.Join(path, "manifest.json")

	eventFile, err := os.Create(eventsPath)
	if err != nil {
		return nil, Manifest{}, err
	}
	eventStream := snappy.NewBufferedWriter(eventFile)

	snapshotFile, err := os.Create(snapshotsPath)
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}
	snapshotZstd, err := zstd.NewWriter(snapshotFile)
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		snapshotFile.Close()
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:       1,
		MatchID:       matchID,
		CreatedAt:     created.Format(time.RFC3339Nano),
		EventsPath:    "events.jsonl.sz",
		SnapshotsPath: "snapshots.bin.zst",
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err == nil {
		err = os.WriteFile(manifestPath, data, 0o644)
	}
	if err != nil {
		snapshotZstd.Close()
		snapshotFile.Close()
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}

	return &Writer{
		dir:          path,
		now:          clock,
		eventFile:    eventFile,
		eventStream:  eventStream,
		snapshotFile: snapshotFile,
		snapshotZstd: snapshotZstd,
	}, manifest, nil
}

// Directory exposes the directory backing the audit bundle.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// eventRecord is the JSONL layout of a single audit event.
type eventRecord struct {
	Tick       uint64          `json:"tick"`
	CapturedAt string          `json:"captured_at"`
	Type       EventType       `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// AppendEvent writes one event line to the compressed event log.
func (w *Writer) AppendEvent(tick uint64, eventType EventType, payload any) error {
	if w == nil {
		return fmt.Errorf("audit writer not initialised")
	}
	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = encoded
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("audit writer closed")
	}

	record := eventRecord{
		Tick:       tick,
		CapturedAt: w.now().UTC().Format(time.RFC3339Nano),
		Type:       eventType,
		Payload:    raw,
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if _, err := w.eventStream.Write(line); err != nil {
		return err
	}
	if _, err := w.eventStream.Write([]byte("\n")); err != nil {
		return err
	}
	return w.eventStream.Flush()
}

// AppendSnapshot persists one length-prefixed snapshot frame.
func (w *Writer) AppendSnapshot(tick uint64, payload []byte) error {
	if w == nil {
		return fmt.Errorf("audit writer not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("audit writer closed")
	}

	//1.- Frame header: tick plus payload length so readers can step the stream.
	header := make([]byte, 8+4)
	binary.LittleEndian.PutUint64(header[0:8], tick)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	if _, err := w.snapshotZstd.Write(header); err != nil {
		return err
	}
	if _, err := w.snapshotZstd.Write(payload); err != nil {
		return err
	}
	return nil
}

// Close flushes and releases both sinks; subsequent writes fail.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	if err := w.eventStream.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.eventStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.eventFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.snapshotZstd.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.snapshotFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
