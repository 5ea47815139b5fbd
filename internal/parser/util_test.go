package parser

import (
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"25.99", "25.99", false},
		{"1,234.56", "1234.56", false},
		{"$25.99", "25.99", false},
		{"-25.00", "-25", false},
		{"1,234,567.89", "1234567.89", false},
		{"0.00", "0", false},
		{"", "0", false},
		{" 25.99 ", "25.99", false},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseAmount(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.expected {
				t.Errorf("got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestNormalizeMonthDay(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Dec 31", "Dec 31"},
		{"Dec31", "Dec 31"},
		{"Jan   03", "Jan 03"},
		{" Feb 1 ", "Feb 1"},
		{"not a date", "not a date"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := normalizeMonthDay(tt.input); got != tt.expected {
				t.Errorf("normalizeMonthDay(%q): got %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTrailingAmount(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"UBER Transportation-25.00", true},
		{"STORE 1,234.56", true},
		{"STORE 12.5", false},
		{"STORE 12.345", false},
		{"Dec 31 Jan 03 UBER CANADA", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := trailingAmount.MatchString(tt.input); got != tt.expected {
				t.Errorf("trailingAmount(%q): got %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
