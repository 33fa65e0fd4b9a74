package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starboard-tutoring/pointsledger/internal/application/eventhandler"
	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/pkg/logger"
)

func testClient(url string) *Client {
	cfg := DefaultClientConfig("TOKEN")
	cfg.BaseURL = url
	cfg.RetryDelay = time.Millisecond
	cfg.Logger = logger.Discard()
	return NewClient(cfg)
}

func TestAlertNotifier_SendsMessage(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer srv.Close()

	n := NewAlertNotifier(testClient(srv.URL), -100123)
	err := n.Notify(context.Background(), eventhandler.Alert{
		StudentID: "stu-grace",
		Level:     ledger.RiskHigh,
		Score:     7,
		Reasons:   []string{"3 penalties in the last 14 days"},
	})
	require.NoError(t, err)

	assert.Equal(t, float64(-100123), got["chat_id"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Contains(t, got["text"], "stu-grace")
	assert.Contains(t, got["text"], "3 penalties in the last 14 days")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":502,"description":"Bad Gateway"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	require.NoError(t, testClient(srv.URL).SendHTML(context.Background(), 1, "hi"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	err := testClient(srv.URL).SendHTML(context.Background(), 1, "hi")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFormatAlert(t *testing.T) {
	msg := FormatAlert(eventhandler.Alert{
		StudentID: "stu-<script>",
		Level:     ledger.RiskMedium,
		Score:     3,
		Reasons:   []string{"streak < 3 days", "missed 2 sessions"},
		RaisedAt:  time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	})

	assert.Contains(t, msg, "<b>MEDIUM risk</b>")
	assert.Contains(t, msg, "stu-&lt;script&gt;")
	assert.Contains(t, msg, "• streak &lt; 3 days\n• missed 2 sessions")
	assert.Contains(t, msg, "2025-03-10 12:00 UTC")
	assert.NotContains(t, msg, "<script>")
}
