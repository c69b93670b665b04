package garage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{&TransportError{Err: errors.New("connection refused")}, "transport"},
		{&UnexpectedStatusError{Status: 503}, "unexpected_status"},
		{&MissingFieldError{Field: "success"}, "missing_field"},
		{&UnexpectedBodyError{Expected: "OK"}, "unexpected_body"},
		{&UnrecognizedStateError{Value: "ajar"}, "unrecognized_state"},
		{&StalenessError{Subject: "Garage", LastKnown: "OPEN", Since: time.Unix(0, 0)}, "stale"},
		{fmt.Errorf("wrapped: %w", ErrNoLight), "no_light"},
		{ErrGateClosed, "gate_closed"},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
