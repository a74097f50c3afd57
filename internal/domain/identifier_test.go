package domain

import (
	"errors"
	"testing"
)

func TestParseIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind string
		wantErr  error
	}{
		{
			name:     "checksummed address",
			input:    "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
			wantKind: KindAddress,
		},
		{
			name:     "lowercase address is accepted and checksummed",
			input:    "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
			wantKind: KindAddress,
		},
		{
			name:    "too short hex string never reinterpreted",
			input:   "0x5aAeb6053F3E94C9",
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "too long hex string fails as address",
			input:   "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed00",
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "non-hex after 0x fails as address",
			input:   "0xZZZeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
			wantErr: ErrInvalidAddress,
		},
		{
			name:     "username",
			input:    "@alice_01",
			wantKind: KindUsername,
		},
		{
			name:    "username too short",
			input:   "@abc",
			wantErr: ErrInvalidUsername,
		},
		{
			name:    "username with illegal character",
			input:   "@al-ice-long",
			wantErr: ErrInvalidUsername,
		},
		{
			name:     "numeric user id",
			input:    "123456789",
			wantKind: KindUserID,
		},
		{
			name:     "single letter alias",
			input:    "c",
			wantKind: KindAlias,
		},
		{
			name:     "alias with hyphen",
			input:    "bob-2",
			wantKind: KindAlias,
		},
		{
			name:    "reserved alias me",
			input:   "me",
			wantErr: ErrInvalidAlias,
		},
		{
			name:    "reserved alias ME any casing",
			input:   "ME",
			wantErr: ErrInvalidAlias,
		},
		{
			name:    "alias over sixteen characters",
			input:   "abcdefghijklmnopq",
			wantErr: ErrInvalidAlias,
		},
		{
			name:    "alias with space",
			input:   "bob smith",
			wantErr: ErrInvalidAlias,
		},
		{
			name:    "empty input",
			input:   "   ",
			wantErr: ErrInvalidFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIdentifier(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Kind != tt.wantKind {
				t.Fatalf("expected kind %s, got %s", tt.wantKind, got.Kind)
			}
		})
	}
}

func TestParseIdentifier_AddressIsChecksummed(t *testing.T) {
	got, err := ParseIdentifier("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	if got.Address != want {
		t.Fatalf("expected checksummed address %s, got %s", want, got.Address)
	}
}

func TestTruncateAddress(t *testing.T) {
	got := TruncateAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	want := "0x5aAe…eAed"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
