package format

import (
	"testing"
	"time"
)

func TestHumanNumber(t *testing.T) {
	cases := []struct {
		input    uint64
		expected string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1K"},
		{1500, "1.5K"},
		{1000000, "1M"},
		{132863336, "133M"},
		{143667240, "144M"},
		{1500000000, "1.5B"},
		{2000000000000, "2T"},
	}

	for _, tc := range cases {
		t.Run(tc.expected, func(t *testing.T) {
			if got := HumanNumber(tc.input); got != tc.expected {
				t.Errorf("HumanNumber(%d) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestHumanBytes(t *testing.T) {
	cases := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{999, "999 B"},
		{1000, "1 KB"},
		{1500, "1.5 KB"},
		{553 * MegaByte, "553 MB"},
		{2 * GigaByte, "2 GB"},
	}

	for _, tc := range cases {
		if got := HumanBytes(tc.input); got != tc.expected {
			t.Errorf("HumanBytes(%d) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestHumanBytes2(t *testing.T) {
	if got := HumanBytes2(512); got != "512 B" {
		t.Errorf("got %q", got)
	}
	if got := HumanBytes2(3 * MebiByte / 2); got != "1.5 MiB" {
		t.Errorf("got %q", got)
	}
}

func TestHumanFLOPs(t *testing.T) {
	if got := HumanFLOPs(15.47e9); got != "15.47 GFLOPs" {
		t.Errorf("got %q", got)
	}
	if got := HumanFLOPs(2e6); got != "2.00 MFLOPs" {
		t.Errorf("got %q", got)
	}
}

func TestHumanDuration(t *testing.T) {
	if got := HumanDuration(1500 * time.Microsecond); got != "1.50ms" {
		t.Errorf("got %q", got)
	}
	if got := HumanDuration(500 * time.Nanosecond); got != "0.50us" {
		t.Errorf("got %q", got)
	}
	if got := HumanDuration(2 * time.Second); got != "2.00s" {
		t.Errorf("got %q", got)
	}
}

func TestHumanTime(t *testing.T) {
	if got := HumanTime(time.Time{}, "Never"); got != "Never" {
		t.Errorf("got %q", got)
	}
	if got := HumanTime(time.Now().Add(-3*time.Minute-time.Second), "Never"); got != "3 minutes ago" {
		t.Errorf("got %q", got)
	}
	if got := HumanTime(time.Now().Add(-time.Hour-time.Second), "Never"); got != "1 hour ago" {
		t.Errorf("got %q", got)
	}
}
