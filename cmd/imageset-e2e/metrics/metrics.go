package metrics

import (
	"github.com/Sirupsen/logrus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/skroutz/imageset-e2e/pkg/types"
)

// TextfileName is the name of the file, inside the report directory, that
// the collected metrics are written to. It follows the naming the node
// exporter textfile collector expects.
const TextfileName = "imageset_e2e.prom"

const namespace = "imageset_e2e"

// Recorder holds the collectors used to export the outcome of a run to
// prometheus.
type Recorder struct {
	Log *logrus.Entry

	Dispatches       *prometheus.CounterVec
	DispatchDuration *prometheus.GaugeVec
	RunSuccess       prometheus.Gauge

	registry *prometheus.Registry
}

// NewRecorder initializes a Recorder and sets up the collectors on a
// registry of its own.
func NewRecorder(logger *logrus.Entry) *Recorder {
	r := new(Recorder)
	r.Log = logger
	r.registry = prometheus.NewRegistry()

	r.Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "The number of test runs launched, by target and result",
		},
		[]string{"provider", "region", "result"},
	)

	r.DispatchDuration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "The wall time of the last test run of a ClusterImageSet on a target",
		},
		[]string{"clusterimageset", "provider", "region"},
	)

	r.RunSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_success",
			Help:      "1 if every test run of the last trigger passed, 0 otherwise",
		},
	)

	r.registry.MustRegister(r.Dispatches, r.DispatchDuration, r.RunSuccess)
	return r
}

// RecordDispatch records the outcome of a single test run.
func (r *Recorder) RecordDispatch(res types.DispatchResult) {
	result := "success"
	if res.Err != nil {
		result = "error"
	} else if res.ExitCode != 0 {
		result = "failure"
	}

	r.Dispatches.With(prometheus.Labels{
		"provider": res.Target.Provider,
		"region":   res.Target.Region,
		"result":   result,
	}).Inc()

	r.DispatchDuration.With(prometheus.Labels{
		"clusterimageset": res.Resource,
		"provider":        res.Target.Provider,
		"region":          res.Target.Region,
	}).Set(res.Duration.Seconds())
}

// RecordRun records the aggregate outcome of the trigger.
func (r *Recorder) RecordRun(success bool) {
	if success {
		r.RunSuccess.Set(1)
	} else {
		r.RunSuccess.Set(0)
	}
}

// WriteTextfile writes every collected metric to path in the prometheus
// text format. Failures are logged and otherwise ignored: metrics never
// affect the outcome of a run.
func (r *Recorder) WriteTextfile(path string) {
	err := prometheus.WriteToTextfile(path, r.registry)
	if err != nil {
		r.Log.Warnf("could not write metrics to %s: %s", path, err)
		return
	}
	r.Log.Debugf("wrote metrics to %s", path)
}
