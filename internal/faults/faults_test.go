package faults

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindTransient, "transient"},
		{KindPermanent, "permanent"},
		{KindData, "data"},
		{KindTimeout, "timeout"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"transient", Transient("fetch video", errors.New("connection reset")), KindTransient},
		{"permanent", Permanent("start job", errors.New("401")), KindPermanent},
		{"data", Dataf("parse row", "missing video name"), KindData},
		{"timeout", Timeout("poll job", errors.New("deadline")), KindTimeout},
		{"wrapped transient", fmt.Errorf("rule phone_usage: %w", Transient("fetch", errors.New("x"))), KindTransient},
		{"plain error defaults to permanent", errors.New("who knows"), KindPermanent},
		{"context deadline", context.DeadlineExceeded, KindTimeout},
		{"context canceled", context.Canceled, KindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(Transient("op", errors.New("x"))) {
		t.Error("transient errors should be retryable")
	}
	if Retryable(Permanent("op", errors.New("x"))) {
		t.Error("permanent errors should not be retryable")
	}
	if Retryable(nil) {
		t.Error("nil is not retryable")
	}
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
		ok     bool
	}{
		{200, 0, true},
		{204, 0, true},
		{429, KindTransient, false},
		{500, KindTransient, false},
		{503, KindTransient, false},
		{401, KindPermanent, false},
		{404, KindPermanent, false},
		{400, KindPermanent, false},
	}
	for _, tt := range tests {
		err := FromStatus("op", tt.status)
		if tt.ok {
			if err != nil {
				t.Errorf("FromStatus(%d) = %v, want nil", tt.status, err)
			}
			continue
		}
		if err == nil || KindOf(err) != tt.want {
			t.Errorf("FromStatus(%d) = %v, want kind %v", tt.status, err, tt.want)
		}
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Transient("upload video", cause)

	want := "upload video: transient: dial tcp: connection refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
}
