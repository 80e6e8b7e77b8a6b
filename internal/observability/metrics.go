package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Conversation metrics
	turnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_agent_turns_total",
		Help: "Total number of completed user turns",
	})

	utterancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_utterances_total",
		Help: "Total utterances appended to the conversation",
	}, []string{"speaker"})

	turnsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_agent_turns_dropped_total",
		Help: "Turn completions dropped because a response was still in flight",
	})

	// Generation metrics
	generationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_generation_requests_total",
		Help: "Total language generation requests",
	}, []string{"status"})

	generationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_agent_generation_latency_seconds",
		Help:    "Language generation latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	// Synthesis metrics
	synthesisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_synthesis_requests_total",
		Help: "Total speech synthesis requests",
	}, []string{"status"})

	synthesisBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_agent_synthesis_bytes_total",
		Help: "Total synthesized audio bytes received",
	})

	// Audio metrics
	audioFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_audio_frames_total",
		Help: "Captured audio frames by outcome",
	}, []string{"outcome"}) // outcome: "sent" or "dropped"

	audioBytesOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_agent_audio_bytes_out_total",
		Help: "PCM bytes streamed to the transcription channel",
	})

	// Telemetry socket metrics
	telemetryReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_agent_telemetry_reconnects_total",
		Help: "Telemetry socket reconnect attempts",
	})

	telemetryFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_telemetry_messages_total",
		Help: "Telemetry messages by kind",
	}, []string{"kind"}) // kind: "frame", "snapshot", "malformed"

	telemetryConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_agent_telemetry_connected",
		Help: "Whether the telemetry socket is connected (0/1)",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_errors_total",
		Help: "Total number of errors",
	}, []string{"kind", "component"})
)

// RecordTurn records a completed user turn.
func RecordTurn() {
	turnsTotal.Inc()
}

// RecordTurnDropped records a turn-completion dropped by the in-flight guard.
func RecordTurnDropped() {
	turnsDropped.Inc()
}

// RecordUtterance records an utterance appended to the conversation.
func RecordUtterance(speaker string) {
	utterancesTotal.WithLabelValues(speaker).Inc()
}

// RecordGeneration records a language generation request and its latency.
func RecordGeneration(success bool, seconds float64) {
	status := "success"
	if !success {
		status = "error"
	}
	generationRequests.WithLabelValues(status).Inc()
	if success {
		generationLatency.Observe(seconds)
	}
}

// RecordSynthesis records a synthesis request outcome.
func RecordSynthesis(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	synthesisRequests.WithLabelValues(status).Inc()
}

// RecordSynthesisBytes records synthesized audio bytes received.
func RecordSynthesisBytes(n int) {
	synthesisBytes.Add(float64(n))
}

// RecordFrame records a captured frame outcome ("sent" or "dropped").
func RecordFrame(outcome string) {
	audioFrames.WithLabelValues(outcome).Inc()
}

// RecordAudioBytesOut records PCM bytes streamed to transcription.
func RecordAudioBytesOut(n int) {
	audioBytesOut.Add(float64(n))
}

// RecordTelemetryReconnect records a telemetry reconnect attempt.
func RecordTelemetryReconnect() {
	telemetryReconnects.Inc()
}

// RecordTelemetryMessage records a telemetry message by kind.
func RecordTelemetryMessage(kind string) {
	telemetryFrames.WithLabelValues(kind).Inc()
}

// SetTelemetryConnected updates the telemetry connection gauge.
func SetTelemetryConnected(connected bool) {
	if connected {
		telemetryConnected.Set(1)
	} else {
		telemetryConnected.Set(0)
	}
}

// RecordError records an error by kind and component.
func RecordError(kind, component string) {
	errorsTotal.WithLabelValues(kind, component).Inc()
}
