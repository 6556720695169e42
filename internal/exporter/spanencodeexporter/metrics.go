package spanencodeexporter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"

	"github.com/deepaksharma/otlp-span-encoder/internal/spanencoder"
)

const metricPrefix = "spanencode_exporter."

// MetricsManager holds the exporter's counters and publishes them through
// observable instruments.
type MetricsManager struct {
	encodedBytes      *atomic.Int64
	exportedSpans     *atomic.Int64
	droppedAttributes *atomic.Int64
	droppedEvents     *atomic.Int64
	droppedLinks      *atomic.Int64
	bufferGrows       *atomic.Int64
	sendFailures      *atomic.Int64
	spooledPayloads   *atomic.Int64
	replayedPayloads  *atomic.Int64

	// spoolSize is read at collection time; nil when the spool is disabled.
	spoolSize func() int64

	meter        metric.Meter
	registration metric.Registration
}

// NewMetricsManager creates a new metrics manager
func NewMetricsManager(meter metric.Meter) *MetricsManager {
	return &MetricsManager{
		encodedBytes:      atomic.NewInt64(0),
		exportedSpans:     atomic.NewInt64(0),
		droppedAttributes: atomic.NewInt64(0),
		droppedEvents:     atomic.NewInt64(0),
		droppedLinks:      atomic.NewInt64(0),
		bufferGrows:       atomic.NewInt64(0),
		sendFailures:      atomic.NewInt64(0),
		spooledPayloads:   atomic.NewInt64(0),
		replayedPayloads:  atomic.NewInt64(0),
		meter:             meter,
	}
}

// RegisterMetrics registers all metrics with the meter
func (m *MetricsManager) RegisterMetrics(spoolSize func() int64) error {
	m.spoolSize = spoolSize

	counters := []struct {
		name        string
		description string
		unit        string
		value       *atomic.Int64
	}{
		{"encoded_bytes", "Bytes of OTLP payload produced by the encoder", "By", m.encodedBytes},
		{"exported_spans", "Number of spans encoded", "{spans}", m.exportedSpans},
		{"dropped_attributes", "Attributes left out by configured limits", "{attributes}", m.droppedAttributes},
		{"dropped_events", "Events left out by configured limits", "{events}", m.droppedEvents},
		{"dropped_links", "Links left out by configured limits", "{links}", m.droppedLinks},
		{"buffer_grows", "Number of times the encode buffer was reallocated", "{grows}", m.bufferGrows},
		{"send_failures", "Number of payloads the endpoint did not accept", "{payloads}", m.sendFailures},
		{"spooled_payloads", "Number of payloads written to the spool", "{payloads}", m.spooledPayloads},
		{"replayed_payloads", "Number of spooled payloads delivered on replay", "{payloads}", m.replayedPayloads},
	}

	instruments := make([]metric.Observable, 0, len(counters)+1)
	for _, c := range counters {
		inst, err := m.meter.Int64ObservableCounter(
			metricPrefix+c.name,
			metric.WithDescription(c.description),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return fmt.Errorf("failed to register %s counter: %w", c.name, err)
		}
		instruments = append(instruments, inst)
	}

	spoolGauge, err := m.meter.Int64ObservableGauge(
		metricPrefix+"spool_size",
		metric.WithDescription("Number of payloads waiting in the spool"),
		metric.WithUnit("{payloads}"),
	)
	if err != nil {
		return fmt.Errorf("failed to register spool size gauge: %w", err)
	}
	instruments = append(instruments, spoolGauge)

	m.registration, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for i, c := range counters {
			o.ObserveInt64(instruments[i].(metric.Int64Observable), c.value.Load())
		}
		if m.spoolSize != nil {
			o.ObserveInt64(spoolGauge, m.spoolSize())
		}
		return nil
	}, instruments...)
	if err != nil {
		return fmt.Errorf("failed to register metrics callback: %w", err)
	}
	return nil
}

// Unregister stops the metrics callback.
func (m *MetricsManager) Unregister() error {
	if m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}

// RecordBatch adds the counters of one encoded batch.
func (m *MetricsManager) RecordBatch(st spanencoder.Stats) {
	m.encodedBytes.Add(int64(st.Bytes))
	m.exportedSpans.Add(int64(st.Spans))
	m.droppedAttributes.Add(int64(st.DroppedAttributes))
	m.droppedEvents.Add(int64(st.DroppedEvents))
	m.droppedLinks.Add(int64(st.DroppedLinks))
	m.bufferGrows.Add(int64(st.BufferGrows))
}
