package telemetry

import (
	"github.com/rjboer/GoIR/internal/logging"
)

// Reporter receives evaluated bands.
type Reporter interface {
	Report(sample Sample)
}

// StdoutReporter logs every sample.
type StdoutReporter struct {
	logger logging.Logger
}

// NewStdoutReporter builds a stdout reporter with the provided logger.
func NewStdoutReporter(logger logging.Logger) StdoutReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return StdoutReporter{logger: logger}
}

func (r StdoutReporter) Report(sample Sample) {
	fields := []logging.Field{
		{Key: "subsystem", Value: "telemetry"},
		{Key: "scenario", Value: sample.Scenario},
		{Key: "band", Value: sample.Band},
		{Key: "method", Value: sample.Method},
		{Key: "power_w", Value: sample.PowerW},
		{Key: "snr", Value: sample.SNR},
	}
	if sample.RunID != "" {
		fields = append(fields, logging.Field{Key: "run_id", Value: sample.RunID})
	}
	if sample.NEPW != 0 {
		fields = append(fields, logging.Field{Key: "nep_w", Value: sample.NEPW})
	}
	r.logger.Info("radiometry sample", fields...)
}
