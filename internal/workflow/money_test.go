package workflow

import "testing"

func TestParseCents(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "plain decimal", input: "1842.50", want: 184250},
		{name: "currency symbol and commas", input: "$1,234.56", want: 123456},
		{name: "whole number", input: "42", want: 4200},
		{name: "surrounding whitespace", input: "  99.99  ", want: 9999},
		{name: "single decimal digit", input: "0.5", want: 50},
		{name: "negative", input: "-10.00", want: -1000},
		{name: "leading decimal point", input: ".75", want: 75},
		{name: "zero", input: "0", want: 0},
		{name: "sub-cent precision", input: "1.005", wantErr: true},
		{name: "not a number", input: "abc", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "symbol only", input: "$", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCents(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseCents(%q) = %d, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCents(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseCents(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{184250, "1842.50"},
		{5, "0.05"},
		{-1000, "-10.00"},
		{0, "0.00"},
		{100, "1.00"},
	}

	for _, tt := range tests {
		if got := FormatCents(tt.cents); got != tt.want {
			t.Errorf("FormatCents(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, cents := range []int64{0, 1, 99, 100, 184250, -5, -184250} {
		got, err := ParseCents(FormatCents(cents))
		if err != nil {
			t.Fatalf("round trip %d failed: %v", cents, err)
		}
		if got != cents {
			t.Errorf("round trip %d = %d", cents, got)
		}
	}
}
