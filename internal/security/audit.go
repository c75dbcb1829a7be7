package security

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

// EventType classifies an audit record (audit_event_type in security.h).
type EventType int

const (
	EventInputValidation EventType = iota
	EventCommandExecution
	EventFileAccess
	EventNetworkAccess
	EventPrivilegeEscalation
)

func (e EventType) String() string {
	switch e {
	case EventInputValidation:
		return "input_validation"
	case EventCommandExecution:
		return "command_execution"
	case EventFileAccess:
		return "file_access"
	case EventNetworkAccess:
		return "network_access"
	case EventPrivilegeEscalation:
		return "privilege_escalation"
	default:
		return "unknown"
	}
}

// Entry is one audit record (security_audit_entry in security.h).
type Entry struct {
	TimestampMS int64
	EventType   EventType
	Message     string
	SourceSite  string
	Result      Result
	// Fingerprint is a keyed BLAKE2b digest of Message, so a shared or
	// persisted audit log never carries the raw (possibly sensitive)
	// text, only a correlatable token scoped to this run.
	Fingerprint string
}

// Sink appends audit records. Implementations must be safe for
// concurrent use (§5: "its append must be atomic with respect to
// concurrent evaluations").
type Sink interface {
	Audit(e Entry) error
}

// fingerprinter computes per-run keyed BLAKE2b fingerprints, grounded on
// the same keyed-digest construction the teacher's scrubber uses for
// placeholder generation: a fresh random key per run prevents an audit
// log from being correlated against a different run's log.
type fingerprinter struct {
	mu  sync.Mutex
	key []byte
}

func newFingerprinter() (*fingerprinter, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("security: generate audit key: %w", err)
	}
	return &fingerprinter{key: key}, nil
}

func (f *fingerprinter) fingerprint(s string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, err := blake2b.New256(f.key)
	if err != nil {
		panic(fmt.Sprintf("security: blake2b.New256: %v", err))
	}
	h.Write([]byte(s))
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:12])
}

// NopSink discards every record.
type NopSink struct{}

func (NopSink) Audit(Entry) error { return nil }

// NDJSONSink appends one JSON object per line to an io.Writer (typically
// a file), the append-only format named in §6.
type NDJSONSink struct {
	mu   sync.Mutex
	w    *bufio.Writer
	fp   *fingerprinter
	flat io.Writer
}

// NewNDJSONSink wraps w. Callers owning a file handle are responsible
// for closing it; NewNDJSONSink never closes w itself.
func NewNDJSONSink(w io.Writer) (*NDJSONSink, error) {
	fp, err := newFingerprinter()
	if err != nil {
		return nil, err
	}
	return &NDJSONSink{w: bufio.NewWriter(w), fp: fp, flat: w}, nil
}

func (s *NDJSONSink) Audit(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Fingerprint = s.fp.fingerprint(e.Message)
	line := fmt.Sprintf("{\"ts\":%d,\"event\":%q,\"result\":%q,\"site\":%q,\"fingerprint\":%q}\n",
		e.TimestampMS, e.EventType, e.Result, e.SourceSite, e.Fingerprint)
	if _, err := s.w.WriteString(line); err != nil {
		return err
	}
	return s.w.Flush()
}

// OpenNDJSONFile opens (or creates, append-only) path and wraps it in an
// NDJSONSink.
func OpenNDJSONFile(path string) (*NDJSONSink, func() error, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("security: open audit log: %w", err)
	}
	sink, err := NewNDJSONSink(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return sink, f.Close, nil
}

// cborRecord is the wire shape persisted by RingBufferSink, kept
// separate from Entry so the CBOR tags don't leak into the public type.
type cborRecord struct {
	TS          int64  `cbor:"ts"`
	Event       string `cbor:"event"`
	Message     string `cbor:"message"`
	Site        string `cbor:"site"`
	Result      string `cbor:"result"`
	Fingerprint string `cbor:"fingerprint"`
}

// RingBufferSink keeps the last N records CBOR-encoded in memory —
// useful for embedding (no filesystem dependency) or for tests that
// want to inspect recent audit activity without parsing NDJSON.
type RingBufferSink struct {
	mu   sync.Mutex
	fp   *fingerprinter
	buf  [][]byte
	next int
	size int
}

// NewRingBufferSink creates a sink holding at most capacity records.
func NewRingBufferSink(capacity int) (*RingBufferSink, error) {
	if capacity <= 0 {
		capacity = 1
	}
	fp, err := newFingerprinter()
	if err != nil {
		return nil, err
	}
	return &RingBufferSink{fp: fp, buf: make([][]byte, capacity)}, nil
}

func (s *RingBufferSink) Audit(e Entry) error {
	rec := cborRecord{
		TS:          e.TimestampMS,
		Event:       e.EventType.String(),
		Message:     e.Message,
		Site:        e.SourceSite,
		Result:      e.Result.String(),
		Fingerprint: s.fp.fingerprint(e.Message),
	}
	enc, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("security: cbor encode audit record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf[s.next] = enc
	s.next = (s.next + 1) % len(s.buf)
	if s.size < len(s.buf) {
		s.size++
	}
	return nil
}

// Entries decodes and returns the currently retained records, oldest
// first.
func (s *RingBufferSink) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, s.size)
	start := s.next - s.size
	if start < 0 {
		start += len(s.buf)
	}
	for i := 0; i < s.size; i++ {
		idx := (start + i) % len(s.buf)
		var rec cborRecord
		if err := cbor.Unmarshal(s.buf[idx], &rec); err != nil {
			return nil, fmt.Errorf("security: cbor decode audit record: %w", err)
		}
		out = append(out, Entry{
			TimestampMS: rec.TS,
			Message:     rec.Message,
			SourceSite:  rec.Site,
			Fingerprint: rec.Fingerprint,
		})
	}
	return out, nil
}

// Now is the injection point for the audit timestamp, isolated so tests
// can fix it.
var Now = func() int64 { return time.Now().UnixMilli() }

// Audit builds an Entry from the given fields, stamps it, and appends it
// to sink. A nil sink is treated as NopSink.
func Audit(sink Sink, eventType EventType, message, sourceSite string, result Result) error {
	if sink == nil {
		sink = NopSink{}
	}
	return sink.Audit(Entry{
		TimestampMS: Now(),
		EventType:   eventType,
		Message:     message,
		SourceSite:  sourceSite,
		Result:      result,
	})
}
