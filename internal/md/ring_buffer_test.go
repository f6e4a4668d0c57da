package md

import (
	"math"
	"testing"
)

func TestRingBufferSMA(t *testing.T) {
	buffer := NewRingBuffer(5)
	values := []float64{1, 2, 3, 4, 5}
	for _, v := range values {
		buffer.Add(v)
	}

	sma, err := buffer.SMA(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := (3.0 + 4.0 + 5.0) / 3.0
	if sma != expected {
		t.Fatalf("expected SMA %.2f, got %.2f", expected, sma)
	}
}

func TestRingBufferSMAInsufficientData(t *testing.T) {
	buffer := NewRingBuffer(5)
	buffer.Add(1)

	if _, err := buffer.SMA(3); err == nil {
		t.Fatalf("expected error for insufficient data")
	}
}

func TestRingBufferWrapsOldestFirst(t *testing.T) {
	buffer := NewRingBuffer(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		buffer.Add(v)
	}

	got := buffer.Values()
	want := []float64{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("value %d: expected %.0f, got %.0f", i, want[i], got[i])
		}
	}
	last, ok := buffer.Last()
	if !ok || last != 5 {
		t.Fatalf("expected last=5, got %.0f ok=%v", last, ok)
	}
}

func TestRingBufferLastEmpty(t *testing.T) {
	buffer := NewRingBuffer(3)
	if _, ok := buffer.Last(); ok {
		t.Fatalf("expected no last value on empty buffer")
	}
}

func TestRingBufferEMA(t *testing.T) {
	buffer := NewRingBuffer(10)
	for _, v := range []float64{10, 11, 12} {
		buffer.Add(v)
	}

	ema, err := buffer.EMA(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// alpha = 0.5: 10 -> 10.5 -> 11.25
	if math.Abs(ema-11.25) > 1e-9 {
		t.Fatalf("expected EMA 11.25, got %.4f", ema)
	}
}

func TestRingBufferEMAInsufficientData(t *testing.T) {
	buffer := NewRingBuffer(10)
	buffer.Add(1)
	if _, err := buffer.EMA(2); err == nil {
		t.Fatalf("expected error for insufficient data")
	}
}
