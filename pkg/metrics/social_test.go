package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestSocialMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSocialMetrics(reg)
	m.GateDenied("toggleLike", "BLOCKED")
	m.GateDenied("toggleLike", "BLOCKED")
	m.TxRetried("blockUser")
	m.TxExhausted("")
	m.CounterClamped("follower_count")
	m.ObservePublish("ok", 120*time.Millisecond)
	m.ObserveBacklog(7, 90*time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "social_gate_denials_total", "reason", "BLOCKED"); err != nil {
		t.Fatalf("fetch denials: %v", err)
	} else if got != 2 {
		t.Fatalf("expected denials=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "social_tx_retries_total", "op", "blockUser"); err != nil {
		t.Fatalf("fetch retries: %v", err)
	} else if got != 1 {
		t.Fatalf("expected retries=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "social_tx_exhausted_total", "op", "unknown"); err != nil {
		t.Fatalf("fetch exhausted: %v", err)
	} else if got != 1 {
		t.Fatalf("expected exhausted=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "social_counter_clamps_total", "counter", "follower_count"); err != nil {
		t.Fatalf("fetch clamps: %v", err)
	} else if got != 1 {
		t.Fatalf("expected clamps=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "social_outbox_publish_seconds", "result", "ok"); err != nil {
		t.Fatalf("fetch publish: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected publish sum > 0, got %f", got)
	}
	if mf := findMetricFamily(mfs, "social_outbox_backlog"); mf == nil || mf.GetMetric()[0].GetGauge().GetValue() != 7 {
		t.Fatalf("expected backlog gauge of 7")
	}
	if mf := findMetricFamily(mfs, "social_outbox_oldest_age_seconds"); mf == nil || mf.GetMetric()[0].GetGauge().GetValue() != 90 {
		t.Fatalf("expected oldest age gauge of 90s")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *SocialMetrics
	m.GateDenied("a", "b")
	m.TxRetried("op")
	m.TxExhausted("op")
	m.CounterClamped("c")
	m.ObservePublish("ok", time.Second)
	m.ObserveBacklog(1, time.Second)

	empty := NewSocialMetrics(nil)
	empty.GateDenied("a", "b")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("counter %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
