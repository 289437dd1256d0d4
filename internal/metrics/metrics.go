package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/spigell/resume-autofill/internal/llm"
)

const namespace = "resume_autofill"

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeTimeout = "timeout"
)

// Recorder counts model attempts and their latency. It implements llm.Observer.
type Recorder struct {
	registry *prometheus.Registry

	attempts    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	exhaustions *prometheus.CounterVec
}

func NewRecorder() (*Recorder, error) {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_attempts_total",
			Help:      "Model attempts by capability, model and outcome.",
		},
		[]string{"capability", "model", "outcome"},
	)
	latency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_attempt_duration_seconds",
			Help:      "Duration of single model attempts in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"capability", "model"},
	)
	exhaustions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_list_exhausted_total",
			Help:      "Calls where every configured model failed.",
		},
		[]string{"capability"},
	)

	for _, c := range []prometheus.Collector{attempts, latency, exhaustions} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Recorder{
		registry:    registry,
		attempts:    attempts,
		latency:     latency,
		exhaustions: exhaustions,
	}, nil
}

func (r *Recorder) AttemptFinished(e llm.AttemptEvent) {
	if r == nil {
		return
	}
	capability := string(e.Capability)
	model := e.Model.String()

	r.attempts.WithLabelValues(capability, model, outcome(e.Err)).Inc()
	r.latency.WithLabelValues(capability, model).Observe(e.Duration.Seconds())
}

func (r *Recorder) Exhausted(err *llm.ExhaustedError) {
	if r == nil || err == nil {
		return
	}
	r.exhaustions.WithLabelValues(string(err.Capability)).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// WriteTextfile dumps all series in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	path = strings.TrimSpace(path)
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile %q: %w", path, err)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case isTimeout(err):
		return outcomeTimeout
	default:
		return outcomeFailure
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
