package apierr

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   Kind
		wantStatus int
	}{
		{"bad request", 400, `{"message":"Invalid Form Body"}`, KindValidation, 400},
		{"unauthorized", 401, `{"message":"401: Unauthorized"}`, KindAuthentication, 401},
		{"forbidden", 403, `{}`, KindValidation, 403},
		{"not found", 404, `{}`, KindValidation, 404},
		{"too many requests", 429, `{"retry_after":1.5}`, KindRateLimited, 429},
		{"internal error", 500, ``, KindServer, 500},
		{"bad gateway", 502, ``, KindServer, 502},
		{"unmapped status", 418, ``, KindServer, 418},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.status, []byte(tt.body), nil)
			require.NotNil(t, err)
			assert.Equal(t, tt.wantKind, err.Kind)
			assert.Equal(t, tt.wantStatus, err.HTTPStatus)
		})
	}
}

func TestClassify_EchoesServerMessage(t *testing.T) {
	err := Classify(400, []byte(`{"message":"Invalid Form Body","code":50035}`), nil)
	assert.Equal(t, "Invalid Form Body", err.Message)
	assert.Equal(t, float64(50035), err.Details["code"])
}

func TestClassify_PermissionDetail(t *testing.T) {
	err := Classify(403, nil, nil)
	assert.Equal(t, "permission_denied", err.Details["reason"])

	err = Classify(404, nil, nil)
	assert.Equal(t, "not_found", err.Details["reason"])
}

func TestClassify_RetryAfterFromBody(t *testing.T) {
	err := Classify(429, []byte(`{"retry_after":2.5,"global":false}`), nil)

	wait, ok := RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 2500*time.Millisecond, wait)
}

func TestClassify_RetryAfterFromHeader(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "3")

	err := Classify(429, nil, header)

	wait, ok := RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, wait)
}

func TestClassify_RetryAfterDefault(t *testing.T) {
	err := Classify(429, nil, nil)

	wait, ok := RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, wait)
}

func TestFromTransport_Timeout(t *testing.T) {
	err := FromTransport(context.DeadlineExceeded)
	assert.Equal(t, KindNetwork, err.Kind)
	assert.Contains(t, err.Message, "timed out")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestIsKind(t *testing.T) {
	rl := RateLimited("slow down", time.Second)
	assert.True(t, IsKind(rl, KindRateLimited))
	assert.False(t, IsKind(rl, KindServer))
	assert.False(t, IsKind(errors.New("plain"), KindRateLimited))

	// Classification survives fmt wrapping in the caller's presentation layer.
	wrapped := wrap(rl)
	assert.True(t, IsKind(wrapped, KindRateLimited))
}

func wrap(err error) error {
	return &wrapper{err}
}

type wrapper struct{ err error }

func (w *wrapper) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapper) Unwrap() error { return w.err }

func TestRetryAfter_NonRateLimited(t *testing.T) {
	_, ok := RetryAfter(New(KindServer, "boom"))
	assert.False(t, ok)
}
