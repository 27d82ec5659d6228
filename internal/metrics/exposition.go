package metrics

import (
	"fmt"
	"strings"

	dto "github.com/prometheus/client_model/go"
)

// FormatFamilies renders gathered metric families in Prometheus exposition
// format. Families arrive from Registry.Gather already sorted by name.
func FormatFamilies(families []*dto.MetricFamily) string {
	var sb strings.Builder

	for _, family := range families {
		name := family.GetName()
		sb.WriteString(fmt.Sprintf("# HELP %s %s\n", name, family.GetHelp()))
		sb.WriteString(fmt.Sprintf("# TYPE %s %s\n", name, typeString(family.GetType())))

		for _, metric := range family.GetMetric() {
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				writeSample(&sb, name, metric.GetLabel(), metric.GetCounter().GetValue())
			case dto.MetricType_GAUGE:
				writeSample(&sb, name, metric.GetLabel(), metric.GetGauge().GetValue())
			case dto.MetricType_HISTOGRAM:
				writeHistogram(&sb, name, metric)
			default:
				writeSample(&sb, name, metric.GetLabel(), metric.GetUntyped().GetValue())
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func typeString(t dto.MetricType) string {
	switch t {
	case dto.MetricType_COUNTER:
		return "counter"
	case dto.MetricType_GAUGE:
		return "gauge"
	case dto.MetricType_HISTOGRAM:
		return "histogram"
	case dto.MetricType_SUMMARY:
		return "summary"
	default:
		return "untyped"
	}
}

func writeSample(sb *strings.Builder, name string, labels []*dto.LabelPair, value float64) {
	sb.WriteString(name)
	sb.WriteString(renderLabels(labels, ""))
	sb.WriteString(fmt.Sprintf(" %s\n", formatValue(value)))
}

func writeHistogram(sb *strings.Builder, name string, metric *dto.Metric) {
	hist := metric.GetHistogram()
	labels := metric.GetLabel()

	for _, bucket := range hist.GetBucket() {
		le := fmt.Sprintf("%g", bucket.GetUpperBound())
		sb.WriteString(name)
		sb.WriteString("_bucket")
		sb.WriteString(renderLabels(labels, fmt.Sprintf("le=%q", le)))
		sb.WriteString(fmt.Sprintf(" %d\n", bucket.GetCumulativeCount()))
	}
	sb.WriteString(name)
	sb.WriteString("_bucket")
	sb.WriteString(renderLabels(labels, `le="+Inf"`))
	sb.WriteString(fmt.Sprintf(" %d\n", hist.GetSampleCount()))

	sb.WriteString(name)
	sb.WriteString("_sum")
	sb.WriteString(renderLabels(labels, ""))
	sb.WriteString(fmt.Sprintf(" %s\n", formatValue(hist.GetSampleSum())))

	sb.WriteString(name)
	sb.WriteString("_count")
	sb.WriteString(renderLabels(labels, ""))
	sb.WriteString(fmt.Sprintf(" %d\n", hist.GetSampleCount()))
}

// renderLabels renders {a="b",c="d"} with extra appended last. Returns ""
// when there is nothing to render.
func renderLabels(labels []*dto.LabelPair, extra string) string {
	parts := make([]string, 0, len(labels)+1)
	for _, pair := range labels {
		parts = append(parts, fmt.Sprintf("%s=%q", pair.GetName(), pair.GetValue()))
	}
	if extra != "" {
		parts = append(parts, extra)
	}
	if len(parts) == 0 {
		return ""
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
