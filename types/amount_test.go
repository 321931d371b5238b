package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"integer", "70", "70.00000000"},
		{"zero", "0", "0.00000000"},
		{"negative", "-30", "-30.00000000"},
		{"two places", "100.25", "100.25000000"},
		{"full precision", "0.00000001", "0.00000001"},
		{"negative fraction", "-0.5", "-0.50000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatAmount(MustAmount(tt.in))
			if got != tt.want {
				t.Errorf("FormatAmount(%s): got %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount(" 100.50 ")
	if err != nil {
		t.Fatalf("ParseAmount failed: %v", err)
	}
	if !d.Equal(decimal.NewFromFloat(100.5)) {
		t.Errorf("got %s, want 100.5", d)
	}

	if _, err := ParseAmount("not-a-number"); err == nil {
		t.Error("expected error for invalid amount")
	}
	if _, err := ParseAmount(""); err == nil {
		t.Error("expected error for empty amount")
	}
}

func TestParseAmountExactRoundTrip(t *testing.T) {
	// Values that drift under binary floating point survive a decimal round-trip.
	inputs := []string{"0.1", "0.3", "1.005", "123456789.12345678", "-0.00000001"}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			d := MustAmount(in)
			back := MustAmount(d.String())
			if !d.Equal(back) {
				t.Errorf("round-trip mismatch: %s != %s", d, back)
			}
		})
	}
}

func TestSum(t *testing.T) {
	total := Sum(MustAmount("0.1"), MustAmount("0.2"), MustAmount("-0.3"))
	if !total.IsZero() {
		t.Errorf("expected exact zero, got %s", total)
	}

	if !Sum().IsZero() {
		t.Error("empty sum should be zero")
	}
}

func TestWithinTolerance(t *testing.T) {
	a := MustAmount("100")
	if !WithinTolerance(a, MustAmount("100.00000001")) {
		t.Error("difference of exactly one unit of precision should be within tolerance")
	}
	if WithinTolerance(a, MustAmount("100.00000002")) {
		t.Error("difference beyond precision should not be within tolerance")
	}
}

func TestNormalizeCurrency(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"upper", "USD", "USD", false},
		{"lower", "usd", "USD", false},
		{"padded", " eur ", "EUR", false},
		{"too short", "US", "", true},
		{"too long", "USDT", "", true},
		{"digits", "U5D", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeCurrency(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NormalizeCurrency(%q): expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeCurrency(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeCurrency(%q): got %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
