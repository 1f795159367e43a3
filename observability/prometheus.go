package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "whisper_subtitle"

type promCollectors struct {
	taskTotal             *prometheus.CounterVec
	taskDuration          *prometheus.HistogramVec
	transcriptionTotal    *prometheus.CounterVec
	transcriptionDuration *prometheus.HistogramVec
	downloadTotal         *prometheus.CounterVec
}

func newPromCollectors(reg prometheus.Registerer) (*promCollectors, error) {
	c := &promCollectors{
		taskTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "task_executions_total",
			Help:      "Task executions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "task_duration_seconds",
			Help:      "Task execution time.",
			Buckets:   []float64{0.1, 1, 5, 30, 60, 300, 900, 1800, 3600},
		}, []string{"kind"}),
		transcriptionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "transcriptions_total",
			Help:      "Transcriptions by engine and outcome.",
		}, []string{"engine", "outcome"}),
		transcriptionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "transcription_duration_seconds",
			Help:      "Transcription processing time.",
			Buckets:   []float64{1, 5, 15, 60, 180, 600, 1800},
		}, []string{"engine", "model"}),
		downloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "downloader",
			Name:      "downloads_total",
			Help:      "Downloads by outcome.",
		}, []string{"outcome"}),
	}
	for _, col := range []prometheus.Collector{
		c.taskTotal, c.taskDuration, c.transcriptionTotal, c.transcriptionDuration, c.downloadTotal,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// GaugeSource reports a labelled snapshot, e.g. task counts by status.
type GaugeSource func() map[string]int

// gaugeCollector exposes a GaugeSource as one gauge per label value,
// evaluated at scrape time.
type gaugeCollector struct {
	desc   *prometheus.Desc
	source GaugeSource
}

// NewGaugeCollector builds a collector for name with a single label.
func NewGaugeCollector(subsystem, name, help, label string, source GaugeSource) prometheus.Collector {
	return &gaugeCollector{
		desc:   prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, []string{label}, nil),
		source: source,
	}
}

func (g *gaugeCollector) Describe(ch chan<- *prometheus.Desc) { ch <- g.desc }

func (g *gaugeCollector) Collect(ch chan<- prometheus.Metric) {
	for value, n := range g.source() {
		ch <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, float64(n), value)
	}
}
