package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in  string
		out string
		err error
	}{
		{"1", "1", nil},
		{"1.23", "1.23", nil},
		{"1,23", "1.23", nil},
		{" 2.50 ", "2.5", nil},
		{"-4", "-4", nil},
		{"", "0", ErrRequired},
		{"abc", "0", ErrNotNumeric},
		{"1.2.3", "0", ErrNotNumeric},
	}
	for _, tc := range cases {
		got, err := ParseNumber(tc.in)
		if !errors.Is(err, tc.err) {
			t.Fatalf("%q expected err %v, got %v", tc.in, tc.err, err)
		}
		if !got.Equal(decimal.RequireFromString(tc.out)) {
			t.Fatalf("%q expected %s, got %s", tc.in, tc.out, got)
		}
	}
}

func TestParsePositive(t *testing.T) {
	if _, err := ParsePositive("0"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}
	if _, err := ParsePositive("-1"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}
	if d, err := ParsePositive("0.01"); err != nil || !d.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("expected 0.01, got %s (err=%v)", d, err)
	}
}

func TestRound2(t *testing.T) {
	cases := map[string]string{
		"42.857142": "42.86",
		"57.145":    "57.15",
		"10":        "10",
		"-1.005":    "-1.01",
	}
	for in, want := range cases {
		got := Round2(decimal.RequireFromString(in))
		if !got.Equal(decimal.RequireFromString(want)) {
			t.Fatalf("Round2(%s) = %s, want %s", in, got, want)
		}
	}
}
