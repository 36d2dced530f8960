// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package controller drives a CRUMBS bus from the host: sends, two-phase
// queries, version checks and scans, with logging, statistics and metrics.
package controller

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Thermoquad/crumbs/internal/catalog"
	"github.com/Thermoquad/crumbs/internal/metrics"
	"github.com/Thermoquad/crumbs/pkg/crumbs"
)

// Options configures a Controller. Zero values select defaults.
type Options struct {
	Timeout time.Duration // reply read timeout
	Settle  time.Duration // delay between SET_REPLY and read
	Catalog *catalog.Catalog
	Logger  *zap.Logger
	Metrics *metrics.BusMetrics
}

// Controller owns a controller crumbs.Context and the bus it drives. All
// methods are safe for concurrent use; bus transactions are serialized.
type Controller struct {
	mu      sync.Mutex
	ctx     *crumbs.Context
	bus     crumbs.Bus
	timeout time.Duration
	settle  time.Duration
	catalog *catalog.Catalog
	logger  *zap.Logger
	metrics *metrics.BusMetrics
	stats   *Statistics
}

// New creates a controller on bus
func New(bus crumbs.Bus, opts Options) *Controller {
	if opts.Timeout <= 0 {
		opts.Timeout = 50 * time.Millisecond
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Controller{
		ctx:     crumbs.NewContext(crumbs.RoleController, 0),
		bus:     bus,
		timeout: opts.Timeout,
		settle:  opts.Settle,
		catalog: opts.Catalog,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		stats:   NewStatistics(),
	}
}

// Catalog returns the device catalog in use
func (c *Controller) Catalog() *catalog.Catalog {
	return c.catalog
}

// record updates statistics and metrics after a transaction; callers hold mu
func (c *Controller) record(err error) {
	c.stats.Update(err)
	if c.metrics != nil && errors.Is(err, crumbs.ErrIntegrity) {
		c.metrics.CRCErrors.Inc()
	}
}

// SendMessage sends m to addr
func (c *Controller) SendMessage(addr uint8, m *crumbs.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := crumbs.ControllerSend(c.ctx, c.bus, addr, m)
	c.stats.Sends++
	c.record(err)
	if err != nil {
		c.logger.Warn("send failed",
			zap.Uint8("addr", addr),
			zap.String("opcode", c.catalog.OpcodeName(m.TypeID, m.Opcode)),
			zap.Error(err))
		return fmt.Errorf("send to 0x%02X: %w", addr, err)
	}

	c.logger.Debug("sent",
		zap.Uint8("addr", addr),
		zap.String("msg", crumbs.FormatMessage(m)))
	return nil
}

// Send builds and sends a message with the given payload
func (c *Controller) Send(addr, typeID, opcode uint8, data []byte) error {
	m := crumbs.NewMessage(typeID, opcode)
	if err := m.SetPayload(data); err != nil {
		return fmt.Errorf("payload of %d bytes: %w", len(data), err)
	}
	return c.SendMessage(addr, &m)
}

// Query stages opcode on addr and reads the reply
func (c *Controller) Query(addr, opcode uint8) (crumbs.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query(addr, opcode)
}

func (c *Controller) query(addr, opcode uint8) (crumbs.Message, error) {
	m, err := crumbs.Query(c.ctx, c.bus, addr, opcode, c.settle, c.timeout)
	c.stats.Queries++
	c.record(err)
	if err != nil {
		c.logger.Debug("query failed",
			zap.Uint8("addr", addr),
			zap.Uint8("opcode", opcode),
			zap.Error(err))
		return crumbs.Message{}, fmt.Errorf("query 0x%02X opcode 0x%02X: %w", addr, opcode, err)
	}

	c.stats.ValidReplies++
	c.logger.Debug("reply",
		zap.Uint8("addr", addr),
		zap.String("msg", crumbs.FormatMessage(&m)))
	return m, nil
}

// Version queries opcode 0 on addr and returns the parsed version and the
// reply's type ID
func (c *Controller) Version(addr uint8) (crumbs.VersionInfo, uint8, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version(addr)
}

func (c *Controller) version(addr uint8) (crumbs.VersionInfo, uint8, error) {
	m, err := c.query(addr, crumbs.OpcodeVersion)
	if err != nil {
		return crumbs.VersionInfo{}, 0, err
	}
	info, err := crumbs.ParseVersionReply(m.Payload())
	if err != nil {
		return crumbs.VersionInfo{}, m.TypeID, fmt.Errorf("version reply from 0x%02X: %w", addr, err)
	}
	return info, m.TypeID, nil
}

// Device is one scan result
type Device struct {
	Addr       uint8
	TypeID     uint8
	TypeName   string
	Version    *crumbs.VersionInfo // nil when the version query failed
	Compatible bool
	Err        error // version query or compatibility failure
}

// ScanReport is the result of one scan run
type ScanReport struct {
	ID       uuid.UUID
	Started  time.Time
	Duration time.Duration
	Strict   bool
	Total    int // devices detected, including any beyond capacity
	Devices  []Device
}

// Scan walks the bus and queries the version of every device found
func (c *Controller) Scan(opts crumbs.ScanOptions) (*ScanReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	report := &ScanReport{
		ID:      uuid.New(),
		Started: time.Now(),
		Strict:  opts.Strict,
	}
	log := c.logger.With(zap.String("scan", report.ID.String()))

	var addrs, types [128]uint8
	n, err := crumbs.ScanWithTypes(c.ctx, c.bus, opts, addrs[:], types[:])
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	report.Total = n
	c.stats.Scans++
	c.stats.DevicesFound = n
	if c.metrics != nil {
		c.metrics.Scans.Inc()
		c.metrics.DevicesFound.Set(float64(n))
	}

	stored := min(n, len(addrs))
	for i := 0; i < stored; i++ {
		d := Device{Addr: addrs[i], TypeID: types[i]}

		info, typeID, verr := c.version(d.Addr)
		if verr == nil {
			d.TypeID = typeID
			d.Version = &info
			d.Err = c.catalog.CheckVersion(typeID, info)
			d.Compatible = d.Err == nil
		} else {
			d.Err = verr
		}
		d.TypeName = c.catalog.TypeName(d.TypeID)

		log.Info("device found",
			zap.Uint8("addr", d.Addr),
			zap.String("type", d.TypeName),
			zap.Bool("compatible", d.Compatible),
			zap.NamedError("version_error", d.Err))
		report.Devices = append(report.Devices, d)
	}

	report.Duration = time.Since(report.Started)
	log.Info("scan complete",
		zap.Int("found", n),
		zap.Bool("strict", opts.Strict),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// Statistics returns a snapshot of the controller statistics
func (c *Controller) Statistics() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := *c.stats
	s.CalculateRates()
	return s
}

// CRCStats returns the controller context's decode error count and whether
// the last decode succeeded
func (c *Controller) CRCStats() (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx.CRCErrorCount(), c.ctx.LastCRCOK()
}

// ResetStatistics clears statistics and the context's CRC counters
func (c *Controller) ResetStatistics() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Reset()
	c.ctx.ResetCRCStats()
}
