package aps

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	platformCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "designauto_platform_calls_total",
			Help: "Total number of platform API calls.",
		},
		[]string{"method", "endpoint", "status"},
	)

	platformCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "designauto_platform_call_duration_seconds",
			Help:    "Platform API call duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func init() {
	prometheus.MustRegister(platformCallsTotal)
	prometheus.MustRegister(platformCallDuration)
}

// Ids and object keys are collapsed so the endpoint label stays bounded.
var endpointSegments = regexp.MustCompile(`/(appbundles|activities|workitems|buckets|objects|aliases)/[^/?]+`)

func endpointLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return endpointSegments.ReplaceAllString(path, "/$1/{id}")
}

func observeCall(method, path string, resp *http.Response, start time.Time) {
	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	endpoint := endpointLabel(path)
	platformCallsTotal.WithLabelValues(method, endpoint, status).Inc()
	platformCallDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
}
