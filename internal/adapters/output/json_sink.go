// Package output provides result destinations and operational surfaces for
// the scoring engine.
//
// This file implements result sinks:
//   - JSONSink: buffered JSONL output to file or stdout
//   - MemorySink: in-memory ring buffer for stats queries and tooling
//
// Features:
//   - Buffered I/O for high throughput (64KB buffer)
//   - Periodic automatic flushing (1 second)
//   - File sync on flush for durability
//   - Raw log lines scrubbed of control characters so each record stays
//     on one line
//
// Thread Safety: all implementations are safe for concurrent Send() calls.
package output

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
)

// JSONSink writes scored events as JSON lines to a file or stdout.
type JSONSink struct {
	writer    io.Writer
	bufWriter *bufio.Writer
	file      *os.File
	mu        sync.Mutex
	encoder   *json.Encoder
	stopFlush chan struct{}
}

// JSONSinkConfig configures JSONL result output.
type JSONSinkConfig struct {
	FilePath string // Output file path (empty for discard)
	Stdout   bool   // Write to stdout instead
	Pretty   bool   // Indented JSON (multi-line records)
}

// NewJSONSink creates a JSONL result sink.
//
// Output priority:
//  1. Stdout if config.Stdout is true
//  2. File if config.FilePath is set
//  3. io.Discard otherwise
//
// File permissions: 0600. Scored events embed attacker-controlled raw log
// text, so the output is treated as sensitive.
func NewJSONSink(config JSONSinkConfig) (*JSONSink, error) {
	var writer io.Writer
	var file *os.File

	if config.Stdout {
		writer = os.Stdout
	} else if config.FilePath != "" {
		var err error
		file, err = os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, err
		}
		writer = file
	} else {
		writer = io.Discard
	}

	const bufferSize = 64 * 1024
	bufWriter := bufio.NewWriterSize(writer, bufferSize)

	sink := &JSONSink{
		writer:    writer,
		bufWriter: bufWriter,
		file:      file,
		stopFlush: make(chan struct{}),
	}

	sink.encoder = json.NewEncoder(bufWriter)
	if config.Pretty {
		sink.encoder.SetIndent("", "  ")
	}

	go sink.periodicFlush()

	return sink, nil
}

// periodicFlush flushes the buffer every second until Close() is called.
func (s *JSONSink) periodicFlush() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush()
		case <-s.stopFlush:
			return
		}
	}
}

// Send serializes one scored event onto its own output line. The raw log
// line is scrubbed of control characters first: an embedded newline in an
// sshd username must not be able to split a record.
func (s *JSONSink) Send(ctx context.Context, se *domain.ScoredEvent) error {
	record := *se
	record.Event.RawLine = scrubControl(record.Event.RawLine)
	record.Event.Username = scrubControl(record.Event.Username)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.encoder.Encode(&record)
}

// Flush forces buffered data to disk.
func (s *JSONSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bufWriter != nil {
		if err := s.bufWriter.Flush(); err != nil {
			return err
		}
	}

	if s.file != nil {
		return s.file.Sync()
	}
	return nil
}

// Close stops periodic flushing, flushes the remaining buffer and closes
// the file.
func (s *JSONSink) Close() error {
	close(s.stopFlush)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bufWriter != nil {
		if err := s.bufWriter.Flush(); err != nil {
			return err
		}
	}

	if s.file != nil {
		if err := s.file.Sync(); err != nil {
			return err
		}
		return s.file.Close()
	}
	return nil
}

// scrubControl replaces ASCII control characters with spaces. JSON encoding
// would escape them anyway, but scrubbing keeps downstream line-oriented
// consumers (grep, jq -c pipelines) safe when the raw line is re-emitted.
func scrubControl(s string) string {
	clean := true
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	b := []byte(s)
	for i := range b {
		if b[i] < 0x20 || b[i] == 0x7f {
			b[i] = ' '
		}
	}
	return string(b)
}

// MemorySink stores scored events in a fixed-size ring buffer.
//
// Used by the stats endpoint and tests to inspect recent results while
// keeping memory bounded.
//
// Thread Safety: safe for concurrent access via RWMutex.
type MemorySink struct {
	results    []*domain.ScoredEvent
	head       int
	count      int
	maxResults int
	mu         sync.RWMutex
}

// NewMemorySink creates an in-memory result buffer holding at most
// maxResults entries (default 1000 if <= 0).
func NewMemorySink(maxResults int) *MemorySink {
	if maxResults <= 0 {
		maxResults = 1000
	}
	return &MemorySink{
		results:    make([]*domain.ScoredEvent, maxResults),
		maxResults: maxResults,
	}
}

// Send stores a scored event, overwriting the oldest when full.
func (m *MemorySink) Send(ctx context.Context, se *domain.ScoredEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.results[m.head] = se
	m.head = (m.head + 1) % m.maxResults
	if m.count < m.maxResults {
		m.count++
	}

	return nil
}

// Flush is a no-op for the memory sink.
func (m *MemorySink) Flush() error {
	return nil
}

// Close is a no-op for the memory sink.
func (m *MemorySink) Close() error {
	return nil
}

// GetResults returns all stored results in chronological order.
func (m *MemorySink) GetResults() []*domain.ScoredEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*domain.ScoredEvent, m.count)
	if m.count == 0 {
		return result
	}

	start := 0
	if m.count == m.maxResults {
		start = m.head
	}

	for i := 0; i < m.count; i++ {
		idx := (start + i) % m.maxResults
		result[i] = m.results[idx]
	}
	return result
}

// GetLatestResults returns the n most recent results, oldest first.
func (m *MemorySink) GetLatestResults(n int) []*domain.ScoredEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n <= 0 || n > m.count {
		n = m.count
	}
	if n == 0 {
		return []*domain.ScoredEvent{}
	}

	result := make([]*domain.ScoredEvent, n)

	for i := 0; i < n; i++ {
		idx := (m.head - n + i + m.maxResults) % m.maxResults
		result[i] = m.results[idx]
	}
	return result
}

// Count returns the current number of stored results.
func (m *MemorySink) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// Clear removes all stored results.
func (m *MemorySink) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.head = 0
	m.count = 0
	for i := range m.results {
		m.results[i] = nil
	}
}

// OnResult implements ports.ResultSubscriber by delegating to Send().
func (m *MemorySink) OnResult(se *domain.ScoredEvent) {
	_ = m.Send(context.Background(), se)
}
