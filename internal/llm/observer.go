package llm

import (
	"time"

	"go.uber.org/zap"

	"github.com/spigell/resume-autofill/internal/logger"
)

// AttemptEvent describes the outcome of one call to one candidate model.
type AttemptEvent struct {
	Capability Capability
	Backend    string
	Model      ModelID
	Index      int
	Total      int
	Duration   time.Duration
	Err        error
}

func (e AttemptEvent) Succeeded() bool { return e.Err == nil }

// Observer receives every attempt made by a Client so an operator can tell
// which backend is unhealthy.
type Observer interface {
	AttemptFinished(AttemptEvent)
	Exhausted(*ExhaustedError)
}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) AttemptFinished(e AttemptEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.AttemptFinished(e)
		}
	}
}

func (o Observers) Exhausted(err *ExhaustedError) {
	for _, obs := range o {
		if obs != nil {
			obs.Exhausted(err)
		}
	}
}

type nopObserver struct{}

func (nopObserver) AttemptFinished(AttemptEvent) {}
func (nopObserver) Exhausted(*ExhaustedError)    {}

// LogObserver writes attempts to a zap logger.
type LogObserver struct {
	logger *zap.Logger
}

func NewLogObserver(l *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger.WithFields(l)}
}

func (o *LogObserver) AttemptFinished(e AttemptEvent) {
	fields := append(logger.CommonFields(e.Backend, e.Model.String()),
		zap.String(logger.FieldCapability, string(e.Capability)),
		zap.Int("candidate", e.Index+1),
		zap.Int("candidates", e.Total),
		zap.Duration("elapsed", e.Duration),
	)

	if e.Err != nil {
		o.logger.Warn("model attempt failed, falling back", append(fields, zap.Error(e.Err))...)
		return
	}

	o.logger.Info("model attempt succeeded", fields...)
}

func (o *LogObserver) Exhausted(err *ExhaustedError) {
	fields := []zap.Field{
		zap.String(logger.FieldCapability, string(err.Capability)),
		zap.Int("attempts", err.Attempts),
	}
	if err.Last != nil {
		fields = append(fields, zap.String(logger.FieldModel, err.Last.Model.String()), zap.Error(err.Last.Err))
	}

	o.logger.Error("all models failed", fields...)
}
