// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/crumbs/pkg/crumbs"
)

// Statistics tracks controller transactions and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	Transactions    uint64
	Sends           uint64
	Queries         uint64
	Scans           uint64
	ValidReplies    uint64
	CRCErrors       uint64
	DecodeErrors    uint64 // short, truncated or over-long frames
	TransportErrors uint64
	DevicesFound    int

	// Rates (calculated)
	TransactionRate float64 // transactions/sec
	ErrorRate       float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records the outcome of one transaction
func (s *Statistics) Update(err error) {
	s.Transactions++
	s.LastUpdateTime = time.Now()

	switch {
	case err == nil:
	case errors.Is(err, crumbs.ErrCRCMismatch):
		s.CRCErrors++
	case errors.Is(err, crumbs.ErrIntegrity):
		s.DecodeErrors++
	default:
		s.TransportErrors++
	}
}

// Errors returns the total error count
func (s *Statistics) Errors() uint64 {
	return s.CRCErrors + s.DecodeErrors + s.TransportErrors
}

// CalculateRates calculates transaction and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.TransactionRate = float64(s.Transactions) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, crcErrorPercent, decodeErrorPercent, transportPercent float64
	if s.Queries > 0 {
		validPercent = float64(s.ValidReplies) * 100.0 / float64(s.Queries)
	}
	if s.Transactions > 0 {
		crcErrorPercent = float64(s.CRCErrors) * 100.0 / float64(s.Transactions)
		decodeErrorPercent = float64(s.DecodeErrors) * 100.0 / float64(s.Transactions)
		transportPercent = float64(s.TransportErrors) * 100.0 / float64(s.Transactions)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Transactions:    %8d\n", s.Transactions)
	result += fmt.Sprintf("  Sends:         %8d\n", s.Sends)
	result += fmt.Sprintf("  Queries:       %8d\n", s.Queries)
	result += fmt.Sprintf("  Scans:         %8d (last found %d)\n", s.Scans, s.DevicesFound)
	result += fmt.Sprintf("Valid Replies:   %8d (%.1f%%)\n", s.ValidReplies, validPercent)

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, crcErrorPercent)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, decodeErrorPercent)
	}
	if s.TransportErrors > 0 {
		result += fmt.Sprintf("Transport Errors:%8d (%.1f%%)\n", s.TransportErrors, transportPercent)
	}

	result += fmt.Sprintf("Transaction Rate:%8.1f /sec\n", s.TransactionRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
