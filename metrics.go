package dafetch

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

var (
	// MetricCoarseStepCount counts genuine Metropolis steps taken on the
	// coarse model, including steps that are later discarded by a rollback.
	MetricCoarseStepCount        = []string{"dafetch", "coarse", "step", "count"}
	MetricCoarseAcceptCount      = []string{"dafetch", "coarse", "accept", "count"}
	MetricFineEvalCount          = []string{"dafetch", "fine", "eval", "count"}
	MetricFineAcceptCount        = []string{"dafetch", "fine", "accept", "count"}
	MetricPerfectFetchCount      = []string{"dafetch", "fetch", "perfect", "count"}
	MetricDiscardedSectionCount  = []string{"dafetch", "fetch", "discarded", "section", "count"}
	MetricDiscardedFineEvalCount = []string{"dafetch", "fetch", "discarded", "fine", "eval", "count"}
	MetricDegenerateEvalCount    = []string{"dafetch", "eval", "degenerate", "count"}
	MetricTryEvalCount           = []string{"dafetch", "multipletry", "eval", "count"}
	MetricTryFallbackCount       = []string{"dafetch", "multipletry", "fallback", "count"}
)

type TelemetryLabel string

var (
	LabelModel  TelemetryLabel = "model"
	LabelWorker TelemetryLabel = "worker"
	LabelRound  TelemetryLabel = "round"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (lab TelemetryLabel) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}
