package email

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricescope/backend/internal/apperror"
)

func newTestSender(url string) *APISender {
	s := NewAPISender(url, "test-key", "alerts@pricescope.app", nil)
	// Keep retries fast in tests
	s.retry = RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	return s
}

func TestAPISender_Send(t *testing.T) {
	var got apiMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := newTestSender(server.URL).Send("user@example.com", "Price alert", "<p>Pro went up</p>")

	assert.NoError(t, err)
	assert.Equal(t, []string{"user@example.com"}, got.To)
	assert.Equal(t, "Price alert", got.Subject)
	assert.Equal(t, "alerts@pricescope.app", got.From)
}

func TestAPISender_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := newTestSender(server.URL).Send("user@example.com", "s", "b")

	assert.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAPISender_DoesNotRetryRejections(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	err := newTestSender(server.URL).Send("bad@", "s", "b")

	assert.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrNotification)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAPISender_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := newTestSender(server.URL).Send("user@example.com", "s", "b")

	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLogSender_AlwaysSucceeds(t *testing.T) {
	s := NewLogSender(nil)
	assert.NoError(t, s.Send("user@example.com", "s", "b"))
}
