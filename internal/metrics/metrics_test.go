// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/crumbs/internal/transport"
	"github.com/Thermoquad/crumbs/pkg/crumbs"
)

func TestResult(t *testing.T) {
	assert.Equal(t, ResultOK, Result(nil))
	assert.Equal(t, ResultNack, Result(fmt.Errorf("write: %w", transport.ErrNack)))
	assert.Equal(t, ResultTimeout, Result(transport.ErrTimeout))
	assert.Equal(t, ResultError, Result(io.ErrUnexpectedEOF))
}

func TestInstrumentedBus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBusMetrics(reg)

	sim := transport.NewSimBus()
	sim.Attach(0x21, &transport.ForeignDevice{})
	bus := Instrument(sim, m)

	assert.True(t, bus.Probe(0x21))
	assert.False(t, bus.Probe(0x22))
	assert.ErrorIs(t, bus.Write(0x22, []byte{1}), transport.ErrNack)
	_, err := bus.Read(0x21, make([]byte, crumbs.MessageMaxSize), time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transactions.WithLabelValues("probe", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transactions.WithLabelValues("probe", ResultNack)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transactions.WithLabelValues("write", ResultNack)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transactions.WithLabelValues("read", ResultOK)))
	assert.Equal(t, 3, testutil.CollectAndCount(m.Latency))
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	m := NewBusMetrics(reg)
	m.DevicesFound.Set(3)
	m.CRCErrors.Add(2)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, "crumbs_devices_found 3")
	assert.Contains(t, body, "crumbs_crc_errors_total 2")
	assert.Contains(t, body, "go_goroutines")
}
