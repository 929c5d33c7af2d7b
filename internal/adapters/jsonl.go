package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// jsonlWriter appends one JSON object per line to a file behind a mutex,
// the cxdb event-emission style: never rewrite the file, only append, so a
// crash mid-write loses at most the last partial line.
type jsonlWriter struct {
	mu   sync.Mutex
	path string
}

func (w *jsonlWriter) append(record any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("adapters: open jsonl file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if err := enc.Encode(record); err != nil {
		return fmt.Errorf("adapters: encode jsonl record: %w", err)
	}
	return nil
}

// JSONLMetricsSink implements ports.MetricsSink by appending one JSON
// object per RecordFixAttempt call.
type JSONLMetricsSink struct {
	writer *jsonlWriter
	once   sync.Once
	Path   string
}

type fixAttemptRecord struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
	Iterations int       `json:"iterations"`
	LatencyMs  int64     `json:"latencyMs"`
	Reason     string    `json:"reason"`
}

// NewJSONLMetricsSink wires a sink appending to path.
func NewJSONLMetricsSink(path string) *JSONLMetricsSink {
	return &JSONLMetricsSink{Path: path, writer: &jsonlWriter{path: path}}
}

func (s *JSONLMetricsSink) RecordFixAttempt(ctx context.Context, success bool, iterations int, latencyMs int64, reason string) error {
	s.ensureWriter()
	return s.writer.append(fixAttemptRecord{
		ID:         ulid.Make().String(),
		Timestamp:  time.Now(),
		Success:    success,
		Iterations: iterations,
		LatencyMs:  latencyMs,
		Reason:     reason,
	})
}

func (s *JSONLMetricsSink) ensureWriter() {
	s.once.Do(func() {
		if s.writer == nil {
			s.writer = &jsonlWriter{path: s.Path}
		}
	})
}

// JSONLPersistence implements ports.PersistencePort with the same
// append-only JSONL style as JSONLMetricsSink, to one shared file covering
// both file modifications and reward signals (distinguished by "kind").
type JSONLPersistence struct {
	writer *jsonlWriter
	once   sync.Once
	Path   string
}

type fileModificationRecord struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	GroupID   string    `json:"groupId"`
	Path      string    `json:"path"`
}

type rewardSignalRecord struct {
	Kind      string         `json:"kind"`
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	GroupID   string         `json:"groupId"`
	Reward    float64        `json:"reward"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewJSONLPersistence wires a JSONLPersistence appending to path.
func NewJSONLPersistence(path string) *JSONLPersistence {
	return &JSONLPersistence{Path: path, writer: &jsonlWriter{path: path}}
}

func (p *JSONLPersistence) RecordFileModification(ctx context.Context, groupID, path string) error {
	p.ensureWriter()
	return p.writer.append(fileModificationRecord{
		Kind:      "file_modification",
		ID:        ulid.Make().String(),
		Timestamp: time.Now(),
		GroupID:   groupID,
		Path:      path,
	})
}

func (p *JSONLPersistence) RecordRewardSignal(ctx context.Context, groupID string, reward float64, payload map[string]any) error {
	p.ensureWriter()
	return p.writer.append(rewardSignalRecord{
		Kind:      "reward_signal",
		ID:        ulid.Make().String(),
		Timestamp: time.Now(),
		GroupID:   groupID,
		Reward:    reward,
		Payload:   payload,
	})
}

func (p *JSONLPersistence) ensureWriter() {
	p.once.Do(func() {
		if p.writer == nil {
			p.writer = &jsonlWriter{path: p.Path}
		}
	})
}
