package domain

import (
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{
			name:  "whole number",
			input: "10",
			want:  10_000_000,
		},
		{
			name:  "two decimal places",
			input: "12.50",
			want:  12_500_000,
		},
		{
			name:  "smallest unit",
			input: "0.000001",
			want:  1,
		},
		{
			name:    "seven fractional digits",
			input:   "0.0000001",
			wantErr: true,
		},
		{
			name:    "zero",
			input:   "0",
			wantErr: true,
		},
		{
			name:    "negative",
			input:   "-5",
			wantErr: true,
		},
		{
			name:    "not a number",
			input:   "abc",
			wantErr: true,
		},
		{
			name:    "absurdly large",
			input:   "1000000000001",
			wantErr: true,
		},
		{
			name:  "upper bound",
			input: "1000000000000",
			want:  1_000_000_000_000_000_000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("expected ErrInvalidAmount, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %d micro units, got %d", tt.want, got)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		micro int64
		want  string
	}{
		{micro: 12_500_000, want: "12.5"},
		{micro: 1, want: "0.000001"},
		{micro: 10_000_000, want: "10"},
	}

	for _, tt := range tests {
		if got := FormatAmount(tt.micro); got != tt.want {
			t.Fatalf("FormatAmount(%d): expected %q, got %q", tt.micro, tt.want, got)
		}
	}
}
