package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registerFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "register_fetch_total",
		Help: "Register days served, by source (cache or store).",
	}, []string{"source"})

	registerSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "register_save_total",
		Help: "Register saves, by result.",
	}, []string{"result"})

	registerSaveWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "register_save_warnings_total",
		Help: "Non-fatal problems during register saves, by kind.",
	}, []string{"kind"})

	registerVariance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "register_cash_variance",
		Help: "Actual minus expected closing cash of the last saved day, by shop.",
	}, []string{"shop"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests, by method and status code.",
	}, []string{"method", "status"})
)

func ObserveFetch(source string) { registerFetches.WithLabelValues(source).Inc() }

func ObserveSave(result string) { registerSaves.WithLabelValues(result).Inc() }

func ObserveSaveWarning(kind string) { registerSaveWarnings.WithLabelValues(kind).Inc() }

func SetVariance(shop string, v float64) { registerVariance.WithLabelValues(shop).Set(v) }

func ObserveRequest(method, status string) { httpRequests.WithLabelValues(method, status).Inc() }
