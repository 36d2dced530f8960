// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes CRUMBS bus activity as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/crumbs/internal/transport"
)

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler serving reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Transaction results
const (
	ResultOK      = "ok"
	ResultNack    = "nack"
	ResultTimeout = "timeout"
	ResultError   = "error"
)

// BusMetrics holds the bus collectors
type BusMetrics struct {
	Transactions *prometheus.CounterVec   // labels: op, result
	Latency      *prometheus.HistogramVec // labels: op
	DevicesFound prometheus.Gauge
	CRCErrors    prometheus.Counter
	Scans        prometheus.Counter
}

// NewBusMetrics registers and returns the bus collectors
func NewBusMetrics(reg prometheus.Registerer) *BusMetrics {
	m := &BusMetrics{
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crumbs_bus_transactions_total",
			Help: "Bus transactions by operation and result.",
		}, []string{"op", "result"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crumbs_bus_transaction_seconds",
			Help:    "Bus transaction latency.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"op"}),
		DevicesFound: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crumbs_devices_found",
			Help: "Devices found by the most recent scan.",
		}),
		CRCErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crumbs_crc_errors_total",
			Help: "Frames that failed to decode.",
		}),
		Scans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crumbs_scans_total",
			Help: "Completed bus scans.",
		}),
	}
	reg.MustRegister(m.Transactions, m.Latency, m.DevicesFound, m.CRCErrors, m.Scans)
	return m
}

// Result classifies a transport error for the result label
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, transport.ErrNack):
		return ResultNack
	case errors.Is(err, transport.ErrTimeout):
		return ResultTimeout
	default:
		return ResultError
	}
}

// Observe records one transaction
func (m *BusMetrics) Observe(op string, start time.Time, err error) {
	m.Transactions.WithLabelValues(op, Result(err)).Inc()
	m.Latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// InstrumentedBus records every transaction of the wrapped bus
type InstrumentedBus struct {
	transport.Bus
	metrics *BusMetrics
}

// Instrument wraps bus
func Instrument(bus transport.Bus, m *BusMetrics) *InstrumentedBus {
	return &InstrumentedBus{Bus: bus, metrics: m}
}

// Write records and forwards a write
func (b *InstrumentedBus) Write(addr uint8, data []byte) error {
	start := time.Now()
	err := b.Bus.Write(addr, data)
	b.metrics.Observe("write", start, err)
	return err
}

// Read records and forwards a read
func (b *InstrumentedBus) Read(addr uint8, buf []byte, timeout time.Duration) (int, error) {
	start := time.Now()
	n, err := b.Bus.Read(addr, buf, timeout)
	b.metrics.Observe("read", start, err)
	return n, err
}

// Probe records and forwards a probe. A missing device counts as a nack.
func (b *InstrumentedBus) Probe(addr uint8) bool {
	start := time.Now()
	ok := b.Bus.Probe(addr)
	var err error
	if !ok {
		err = transport.ErrNack
	}
	b.metrics.Observe("probe", start, err)
	return ok
}
