package workers

import (
	"runtime"
	"testing"
)

func TestCount(t *testing.T) {
	t.Setenv(CodecEnv, "")
	availableCPU := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		minExpect  int
		maxExpect  int
	}{
		{name: "CPU-bound", multiplier: 1.0, minExpect: 1, maxExpect: availableCPU},
		{name: "I/O-bound", multiplier: 2.0, minExpect: 1, maxExpect: availableCPU * 2},
		{name: "Limit lower than calculated", multiplier: 2.0, limit: 2, minExpect: 1, maxExpect: 2},
		{name: "Very low multiplier", multiplier: 0.01, minExpect: 1, maxExpect: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Count(CodecEnv, tt.multiplier, tt.limit)
			if got < tt.minExpect || got > tt.maxExpect {
				t.Errorf("Count(%v, %d) = %d, want in [%d, %d]", tt.multiplier, tt.limit, got, tt.minExpect, tt.maxExpect)
			}
		})
	}
}

func TestCountOverride(t *testing.T) {
	tests := []struct {
		name  string
		value string
		limit int
		want  int
	}{
		{name: "Valid override", value: "3", want: 3},
		{name: "Override capped by limit", value: "16", limit: 4, want: 4},
		{name: "Zero ignored", value: "0", limit: 1, want: 1},
		{name: "Garbage ignored", value: "many", limit: 1, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(CodecEnv, tt.value)
			if got := ForCodec(tt.limit); got != tt.want {
				t.Errorf("ForCodec(%d) with %s=%q = %d, want %d", tt.limit, CodecEnv, tt.value, got, tt.want)
			}
		})
	}
}

func TestForIOUsesOwnOverride(t *testing.T) {
	t.Setenv(CodecEnv, "7")
	t.Setenv(IngestEnv, "5")

	if got := ForIO(0); got != 5 {
		t.Errorf("ForIO(0) = %d, want 5", got)
	}
}
