package parser

import (
	"testing"
)

func TestExtractPeriod(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantStart string
		wantEnd   string
		wantNil   bool
	}{
		{
			name:      "colon separated",
			text:      "Simplii Financial\nStatement period: December 4, 2024 to January 3, 2025\n",
			wantStart: "December 4, 2024",
			wantEnd:   "January 3, 2025",
		},
		{
			name:      "case insensitive with dash",
			text:      "STATEMENT PERIOD - Nov 4, 2024 to Dec 3, 2024",
			wantStart: "Nov 4, 2024",
			wantEnd:   "Dec 3, 2024",
		},
		{
			name:      "no punctuation and extra whitespace",
			text:      "statement   period   March 1 2024   to   March 31 2024",
			wantStart: "March 1 2024",
			wantEnd:   "March 31 2024",
		},
		{
			name:      "wrapped across lines",
			text:      "Statement period:\nDecember 4, 2024 to\nJanuary 3, 2025",
			wantStart: "December 4, 2024",
			wantEnd:   "January 3, 2025",
		},
		{
			name:    "missing declaration",
			text:    "Dec 31 Jan 03 UBER Transportation -25.00",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractPeriod(tt.text)
			if tt.wantNil {
				if got != nil {
					t.Errorf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected period, got nil")
			}
			if got.StartDate != tt.wantStart {
				t.Errorf("start: got %q, want %q", got.StartDate, tt.wantStart)
			}
			if got.EndDate != tt.wantEnd {
				t.Errorf("end: got %q, want %q", got.EndDate, tt.wantEnd)
			}
		})
	}
}
