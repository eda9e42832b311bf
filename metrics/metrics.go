package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-unitgate/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "unitgate"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "test_attempts_total",
		Help:      "Count of test command invocations",
	}, []string{
		"package",
		"result",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of completed gate runs by final result",
	}, []string{
		"package",
		"result",
	})

	coverageGateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "coverage_gate_total",
		Help:      "Count of coverage gate evaluations",
	}, []string{
		"package",
		"result",
	})

	aggregatedBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "aggregated_bytes_total",
		Help:      "Bytes of coverage reports appended to the aggregate file",
	}, []string{
		"package",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of the last gate run",
	}, []string{
		"package",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordAttempt(pkg string, result types.Status) {
	if !result.IsValid() {
		log.Error("RecordAttempt - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "test_attempts_total",
			"package", pkg,
			"result", result)
	}
	testAttemptsTotal.WithLabelValues(pkg, string(result)).Inc()
}

func RecordCoverageGate(pkg string, result types.Status) {
	if !result.IsValid() {
		log.Error("RecordCoverageGate - invalid result", "result", result)
		return
	}
	coverageGateTotal.WithLabelValues(pkg, string(result)).Inc()
}

func RecordAggregatedBytes(pkg string, n int64) {
	if n <= 0 {
		return
	}
	aggregatedBytesTotal.WithLabelValues(pkg).Add(float64(n))
}

func RecordRun(pkg string, result types.Status, duration time.Duration) {
	if !result.IsValid() {
		log.Error("RecordRun - invalid result", "result", result)
		return
	}
	runsTotal.WithLabelValues(pkg, string(result)).Inc()
	runDuration.WithLabelValues(pkg).Set(duration.Seconds())
}
