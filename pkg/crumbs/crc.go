// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crumbs

// crcNibbleTable holds CRC-8 (poly 0x07) remainders for each 4-bit value.
// Sixteen bytes keep the reference implementation small enough for any target.
var crcNibbleTable = [16]uint8{
	0x00, 0x07, 0x0E, 0x09, 0x1C, 0x1B, 0x12, 0x15,
	0x38, 0x3F, 0x36, 0x31, 0x24, 0x23, 0x2A, 0x2D,
}

// crcByteTable is the byte-wise equivalent of crcNibbleTable
var crcByteTable = buildCRCByteTable()

// CalculateCRC computes the CRC-8 checksum for the given data using the
// nibble-driven reference table.
func CalculateCRC(data []byte) uint8 {
	crc := uint8(crcInitial)
	for _, b := range data {
		crc = crcNibbleTable[(crc>>4)^(b>>4)] ^ (crc << 4)
		crc = crcNibbleTable[(crc>>4)^(b&0x0F)] ^ (crc << 4)
	}
	return crc
}

// CalculateCRCFast computes the same checksum as CalculateCRC with a 256-entry
// table. It trades 256 bytes of RAM for one lookup per byte.
func CalculateCRCFast(data []byte) uint8 {
	crc := uint8(crcInitial)
	for _, b := range data {
		crc = crcByteTable[crc^b]
	}
	return crc
}

// buildCRCByteTable derives the byte table bit by bit from the polynomial
func buildCRCByteTable() (table [256]uint8) {
	for i := 0; i < 256; i++ {
		r := uint8(i)
		for bit := 0; bit < 8; bit++ {
			if r&0x80 != 0 {
				r = (r << 1) ^ crcPolynomial
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return table
}
