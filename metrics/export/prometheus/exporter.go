package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	phoneverify "github.com/MrEthical07/phoneverify"
	"github.com/MrEthical07/phoneverify/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() phoneverify.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter renders an engine snapshot on every scrape.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter reads from engine.
func NewPrometheusExporter(engine *phoneverify.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource reads from any value exposing a snapshot
// and the audit drop count.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the exposition text, or "" when metrics are disabled and
// nothing was dropped.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	e := exposition{}
	e.b.Grow(4096)

	for _, fam := range internaldefs.CounterFamilies {
		e.header(fam.Name, fam.Help, "counter")
		for _, s := range fam.Series {
			e.sample(fam.Name, fam.Label, s.Value, snapshot.Counters[s.ID])
		}
	}

	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.Cumulative(snapshot.Histograms[def.ID])
		e.header(def.Name, def.Help, "histogram")
		for i, le := range internaldefs.BucketBounds {
			e.sample(def.Name+"_bucket", "le", le, cumulative[i])
		}
		// Snapshots carry no sum.
		e.sample(def.Name+"_sum", "", "", 0)
		e.sample(def.Name+"_count", "", "", cumulative[len(cumulative)-1])
	}

	e.header(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	e.sample(internaldefs.AuditDroppedName, "", "", dropped)

	return e.b.String()
}

type exposition struct {
	b strings.Builder
}

func (e *exposition) header(name, help, kind string) {
	e.b.WriteString("# HELP ")
	e.b.WriteString(name)
	e.b.WriteByte(' ')
	e.b.WriteString(escapeHelp(help))
	e.b.WriteString("\n# TYPE ")
	e.b.WriteString(name)
	e.b.WriteByte(' ')
	e.b.WriteString(kind)
	e.b.WriteByte('\n')
}

func (e *exposition) sample(name, label, value string, v uint64) {
	e.b.WriteString(name)
	if label != "" {
		e.b.WriteByte('{')
		e.b.WriteString(label)
		e.b.WriteString(`="`)
		e.b.WriteString(value)
		e.b.WriteString(`"}`)
	}
	e.b.WriteByte(' ')
	e.b.WriteString(strconv.FormatUint(v, 10))
	e.b.WriteByte('\n')
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, `\`, `\\`)
	return strings.ReplaceAll(help, "\n", `\n`)
}
