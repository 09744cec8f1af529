// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"testing"
)

func TestListenPort_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		port ListenPort
		want string
	}{
		{0, "0"},
		{80, "80"},
		{DefaultListenPort, "10080"},
		{65535, "65535"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			if got := tt.port.String(); got != tt.want {
				t.Errorf("ListenPort(%d).String() = %q, want %q", tt.port, got, tt.want)
			}
		})
	}
}

func TestListenPort_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		port    ListenPort
		wantErr bool
	}{
		{0, false},
		{1, false},
		{10080, false},
		{65535, false},
		{-1, true},
		{65536, true},
	}

	for _, tt := range tests {
		t.Run(tt.port.String(), func(t *testing.T) {
			t.Parallel()
			err := tt.port.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ListenPort(%d).Validate() error = %v, wantErr %v", tt.port, err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, ErrInvalidListenPort) {
				t.Errorf("error should wrap ErrInvalidListenPort, got: %v", err)
			}
			var lpErr *InvalidListenPortError
			if !errors.As(err, &lpErr) {
				t.Fatalf("error should be *InvalidListenPortError, got: %T", err)
			}
			if lpErr.Value != tt.port {
				t.Errorf("InvalidListenPortError.Value = %d, want %d", lpErr.Value, tt.port)
			}
		})
	}
}

func TestParseListenPort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    ListenPort
		wantErr bool
	}{
		{name: "empty uses default", input: "", want: DefaultListenPort},
		{name: "whitespace uses default", input: "  ", want: DefaultListenPort},
		{name: "ephemeral", input: "0", want: 0},
		{name: "explicit", input: "8080", want: 8080},
		{name: "padded", input: " 9000 ", want: 9000},
		{name: "not a number", input: "http", wantErr: true},
		{name: "out of range", input: "70000", wantErr: true},
		{name: "negative", input: "-5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseListenPort(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseListenPort(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidListenPort) {
					t.Errorf("error should wrap ErrInvalidListenPort, got: %v", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseListenPort(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestListenPort_IsEphemeral(t *testing.T) {
	t.Parallel()

	if !ListenPort(0).IsEphemeral() {
		t.Error("port 0 should be ephemeral")
	}
	if DefaultListenPort.IsEphemeral() {
		t.Error("default port should not be ephemeral")
	}
}
