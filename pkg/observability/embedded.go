// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package observability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EmbeddedConfig configures the embedded tracer.
type EmbeddedConfig struct {
	// MaxSpans bounds the completed spans kept in memory (default: 10,000).
	// The oldest span is dropped when the bound is reached.
	MaxSpans int

	// LogSpans logs every completed span at info level instead of debug.
	LogSpans bool

	// Logger for the embedded tracer (optional, defaults to a no-op logger).
	Logger *zap.Logger
}

// DefaultEmbeddedConfig returns the defaults for in-process tracing.
func DefaultEmbeddedConfig() *EmbeddedConfig {
	return &EmbeddedConfig{
		MaxSpans: 10000,
	}
}

// EmbeddedTracer keeps completed spans and the last value of every metric
// in process, and reports them through zap.
type EmbeddedTracer struct {
	logger   *zap.Logger
	maxSpans int
	logSpans bool

	mu          sync.RWMutex
	activeSpans map[string]*Span
	spans       []*Span
	dropped     int
	metrics     map[string]float64
	closed      bool
}

// NewEmbeddedTracer creates an embedded tracer. A nil config uses
// DefaultEmbeddedConfig.
func NewEmbeddedTracer(config *EmbeddedConfig) *EmbeddedTracer {
	if config == nil {
		config = DefaultEmbeddedConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxSpans := config.MaxSpans
	if maxSpans <= 0 {
		maxSpans = DefaultEmbeddedConfig().MaxSpans
	}

	return &EmbeddedTracer{
		logger:      logger,
		maxSpans:    maxSpans,
		logSpans:    config.LogSpans,
		activeSpans: make(map[string]*Span),
		metrics:     make(map[string]float64),
	}
}

// StartSpan creates a span and links it to the span on ctx, if any.
func (t *EmbeddedTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	span := &Span{
		TraceID:    uuid.New().String(),
		SpanID:     uuid.New().String(),
		Name:       name,
		StartTime:  time.Now(),
		Attributes: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(span)
	}
	if parent := SpanFromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	}

	t.mu.Lock()
	if !t.closed {
		t.activeSpans[span.SpanID] = span
	}
	t.mu.Unlock()

	return ContextWithSpan(ctx, span), span
}

// EndSpan stamps the duration and stores the span.
func (t *EmbeddedTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	delete(t.activeSpans, span.SpanID)
	if len(t.spans) >= t.maxSpans {
		t.spans[0] = nil
		t.spans = t.spans[1:]
		t.dropped++
	}
	t.spans = append(t.spans, span)
	t.mu.Unlock()

	fields := []zap.Field{
		zap.String("span", span.Name),
		zap.String("trace_id", span.TraceID),
		zap.Duration("duration", span.Duration),
		zap.Stringer("status", span.Status.Code),
	}
	if span.Status.Code == StatusError {
		fields = append(fields, zap.String("error", span.Status.Message))
	}
	if t.logSpans {
		t.logger.Info("span completed", fields...)
	} else {
		t.logger.Debug("span completed", fields...)
	}
}

// RecordMetric keeps the last value recorded under name.
func (t *EmbeddedTracer) RecordMetric(name string, value float64, labels map[string]string) {
	t.mu.Lock()
	if !t.closed {
		t.metrics[name] = value
	}
	t.mu.Unlock()

	t.logger.Debug("metric recorded",
		zap.String("name", name),
		zap.Float64("value", value),
		zap.Any("labels", labels),
	)
}

// Flush logs a summary of the stored spans and current metric values.
func (t *EmbeddedTracer) Flush(ctx context.Context) error {
	t.mu.RLock()
	stored, active, dropped := len(t.spans), len(t.activeSpans), t.dropped
	names := make([]string, 0, len(t.metrics))
	for name := range t.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	fields := []zap.Field{
		zap.Int("spans_stored", stored),
		zap.Int("spans_active", active),
		zap.Int("spans_dropped", dropped),
	}
	for _, name := range names {
		fields = append(fields, zap.Float64(name, t.metrics[name]))
	}
	t.mu.RUnlock()

	t.logger.Info("tracer flushed", fields...)
	return nil
}

// Spans returns the completed spans, oldest first.
func (t *EmbeddedTracer) Spans() []*Span {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Span, len(t.spans))
	copy(out, t.spans)
	return out
}

// SpansByName returns the completed spans called name, oldest first.
func (t *EmbeddedTracer) SpansByName(name string) []*Span {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Span
	for _, s := range t.spans {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// Metric returns the last value recorded under name.
func (t *EmbeddedTracer) Metric(name string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.metrics[name]
	return v, ok
}

// Close flushes and stops recording. Later spans and metrics are ignored.
func (t *EmbeddedTracer) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	err := t.Flush(context.Background())

	t.mu.Lock()
	t.closed = true
	t.activeSpans = make(map[string]*Span)
	t.mu.Unlock()

	t.logger.Info("embedded tracer closed")
	return err
}

var _ Tracer = (*EmbeddedTracer)(nil)
