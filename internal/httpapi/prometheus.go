package httpapi

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tokopos",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests by method, route and status code.",
}, []string{"method", "route", "status"})

func observeRequest(method string, path string, status int) {
	requestsTotal.WithLabelValues(method, routeLabel(path), strconv.Itoa(status)).Inc()
}

// routeLabel collapses paths carrying identifiers so the label set stays
// bounded.
func routeLabel(path string) string {
	for _, prefix := range []string{"/api/v1/products/", "/api/v1/services/", "/api/v1/transactions/"} {
		if strings.HasPrefix(path, prefix) {
			return prefix + ":id"
		}
	}
	return path
}
