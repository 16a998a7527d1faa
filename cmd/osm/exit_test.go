package main

import (
	"errors"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestExitErrHandler_NilError(t *testing.T) {
	// Should not panic or exit on nil error
	exitErrHandler(nil, nil)
}

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{
			name:     "exit code 0 no message",
			err:      cli.Exit("", 0),
			wantCode: 0,
			wantMsg:  "",
		},
		{
			name:     "runtime failure with message",
			err:      cli.Exit("state file not found", 1),
			wantCode: 1,
			wantMsg:  "state file not found",
		},
		{
			name:     "usage error",
			err:      cli.Exit("--since and --seqno are mutually exclusive", 2),
			wantCode: 2,
			wantMsg:  "--since and --seqno are mutually exclusive",
		},
		{
			name:     "wrapped exit coder",
			err:      errors.Join(errors.New("context"), cli.Exit("inner error", 2)),
			wantCode: 2,
			wantMsg:  "inner error",
		},
		{
			name:     "regular error",
			err:      errors.New("GET https://example.org: connection refused"),
			wantCode: 1,
			wantMsg:  "Error: GET https://example.org: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := exitStatus(tt.err)
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if msg != tt.wantMsg {
				t.Errorf("msg = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}
