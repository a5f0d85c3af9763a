package synth

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type pipelineMetrics struct {
	sessions   metric.Int64Counter
	duration   metric.Float64Histogram
	audioBytes metric.Int64Counter
}

func newPipelineMetrics() (*pipelineMetrics, error) {
	meter := otel.Meter("github.com/orpheuslabs/orpheusd/internal/synth")

	sessions, err := meter.Int64Counter("tts.sessions",
		metric.WithDescription("Synthesis sessions by outcome"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("tts.synthesis.duration",
		metric.WithDescription("Wall time of completed synthesis sessions"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	audioBytes, err := meter.Int64Counter("tts.audio.bytes",
		metric.WithDescription("PCM bytes produced"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}
	return &pipelineMetrics{sessions: sessions, duration: duration, audioBytes: audioBytes}, nil
}

func (m *pipelineMetrics) observe(ctx context.Context, outcome string, elapsed time.Duration, pcmBytes int) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.sessions.Add(ctx, 1, attrs)
	if elapsed > 0 {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
	if pcmBytes > 0 {
		m.audioBytes.Add(ctx, int64(pcmBytes))
	}
}
