package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	_ "github.com/meridian-erp/meridian-erp/internal/testing/guard"
)

func TestNotificationJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	// Delivery notifications are the hot path and should stay fast.
	for i := 0; i < 60; i++ {
		tracker := metrics.Track("notify:delivery_posted")
		time.Sleep(2 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending tracker: %v", err)
		}
		metrics.AddNotification("delivery_posted", "sent")
	}

	// The nightly idempotency sweep is slower but rare.
	for i := 0; i < 5; i++ {
		tracker := metrics.Track("maintenance:idempotency_cleanup")
		time.Sleep(20 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending sweep tracker: %v", err)
		}
	}

	// A few redis hiccups should surface as failures, not panics.
	for i := 0; i < 3; i++ {
		tracker := metrics.Track("notify:delivery_posted")
		time.Sleep(3 * time.Millisecond)
		if err := tracker.End(errors.New("redis timeout")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "meridian_jobs_total", map[string]string{"job": "notify:delivery_posted", "status": "success"})
	failure := metricValue(t, families, "meridian_jobs_total", map[string]string{"job": "notify:delivery_posted", "status": "failure"})
	if success+failure == 0 {
		t.Fatal("no notification job executions recorded")
	}
	ratio := success / (success + failure)
	if ratio < 0.9 {
		t.Fatalf("notification success ratio too low: %f", ratio)
	}

	sent := metricValue(t, families, "meridian_notifications_total", map[string]string{"kind": "delivery_posted", "outcome": "sent"})
	if sent != 60 {
		t.Fatalf("expected 60 sent notifications, got %f", sent)
	}

	sweepDuration := histogramMean(t, families, "meridian_job_duration_seconds", map[string]string{"job": "maintenance:idempotency_cleanup"})
	if sweepDuration > 2.0 {
		t.Fatalf("idempotency sweep duration above budget: %f", sweepDuration)
	}

	notifyDuration := histogramMean(t, families, "meridian_job_duration_seconds", map[string]string{"job": "notify:delivery_posted"})
	if notifyDuration > 0.5 {
		t.Fatalf("notification duration above budget: %f", notifyDuration)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
