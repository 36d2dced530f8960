// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crumbs

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomMessage builds a message with random header and payload
func randomMessage(rng *rand.Rand) Message {
	m := NewMessage(uint8(rng.Intn(256)), uint8(rng.Intn(256)))
	n := rng.Intn(MaxPayload + 1)
	for i := 0; i < n; i++ {
		m.AddU8(uint8(rng.Intn(256)))
	}
	return m
}

func TestFuzzDecode_RandomBytes(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	ctx := NewContext(RolePeripheral, 0x10)

	for i := 0; i < rounds; i++ {
		data := make([]byte, rng.Intn(MessageMaxSize*2))
		rng.Read(data)

		// Must never panic; failures must be counted
		before := ctx.CRCErrorCount()
		if err := ctx.HandleReceive(data); err != nil && ctx.CRCErrorCount() != before+1 {
			t.Fatalf("round %d: failed decode not counted", i)
		}
	}
}

func TestFuzzCodec_RoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	buf := make([]byte, MessageMaxSize)

	for i := 0; i < rounds; i++ {
		m := randomMessage(rng)
		n, err := Encode(&m, buf)
		if err != nil {
			t.Fatalf("round %d: encode: %v", i, err)
		}
		got, err := Decode(buf[:n], nil)
		if err != nil {
			t.Fatalf("round %d: decode: %v", i, err)
		}
		if got != m {
			t.Fatalf("round %d: mismatch\n  got  %s\n  want %s", i, FormatMessage(&got), FormatMessage(&m))
		}
	}
}

func TestFuzzCodec_SingleBitFlips(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	buf := make([]byte, MessageMaxSize)
	ctx := NewContext(RoleController, 0)

	for i := 0; i < rounds; i++ {
		m := randomMessage(rng)
		n, _ := Encode(&m, buf)

		// A shortened length can alias a valid frame, covered exhaustively elsewhere
		pos := rng.Intn(n)
		if pos == offsetDataLen {
			pos = offsetOpcode
		}
		bit := uint(rng.Intn(8))
		buf[pos] ^= 1 << bit

		before := ctx.CRCErrorCount()
		_, err := Decode(buf[:n], ctx)
		if err == nil {
			t.Fatalf("round %d: flip at byte %d bit %d decoded", i, pos, bit)
		}
		if ctx.CRCErrorCount() != before+1 {
			t.Fatalf("round %d: count %d, want %d", i, ctx.CRCErrorCount(), before+1)
		}
	}
}

func TestFuzzCodec_Truncated(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	buf := make([]byte, MessageMaxSize)

	for i := 0; i < rounds; i++ {
		m := randomMessage(rng)
		n, _ := Encode(&m, buf)
		cut := rng.Intn(n)
		if _, err := Decode(buf[:cut], nil); err == nil {
			t.Fatalf("round %d: frame cut to %d of %d bytes decoded", i, cut, n)
		}
	}
}

func TestFuzzPayload_Readers(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		data := make([]byte, rng.Intn(MaxPayload+1))
		off := rng.Intn(MaxPayload+8) - 4

		_, err := ReadU32(data, off)
		fits := off >= 0 && off+4 <= len(data)
		if fits != (err == nil) {
			t.Fatalf("round %d: len=%d off=%d err=%v", i, len(data), off, err)
		}
	}
}
