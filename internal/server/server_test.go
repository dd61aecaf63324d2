package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicebot/internal/dispatcher"
	"invoicebot/internal/engine"
	"invoicebot/internal/slack"
	"invoicebot/internal/store"
	"invoicebot/pkg/models"
)

const (
	testSecret    = "test-signing-secret"
	testBotUserID = "UBOT"
)

var testNow = time.Unix(1700000000, 0)

type capturePoster struct {
	posted chan string
}

func (c *capturePoster) PostMessage(_ context.Context, _, text, _ string) error {
	c.posted <- text
	return nil
}

func (c *capturePoster) FileDownloadURL(_ context.Context, _ string) (string, error) {
	return "https://files.example.com/f1", nil
}

type nopIngestor struct{}

func (nopIngestor) FetchInvoices(_ context.Context, _ string) ([]models.Invoice, error) {
	return nil, nil
}

type nopDelegate struct{}

func (nopDelegate) Insights(_ context.Context, _ string) (string, error) {
	return "insight", nil
}

func (nopDelegate) InvoiceInsights(_ context.Context, _ []models.Invoice) (string, error) {
	return "insight", nil
}

type fixture struct {
	handler http.Handler
	poster  *capturePoster
	store   *store.Store
}

// newFixture builds a server over an unstarted dispatcher unless start is
// set; unstarted dispatchers just queue jobs, which is enough for routing
// assertions.
func newFixture(t *testing.T, start bool, queue int) fixture {
	t.Helper()

	poster := &capturePoster{posted: make(chan string, 8)}
	invoiceStore := store.NewWithDemoData()
	analysisEngine := engine.New(engine.Options{
		Now: func() time.Time { return time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC) },
	})

	disp := dispatcher.New(dispatcher.Deps{
		Poster:   poster,
		Ingestor: nopIngestor{},
		Engine:   analysisEngine,
		Store:    invoiceStore,
		Delegate: nopDelegate{},
		Workers:  1,
		Queue:    queue,
	})
	if start {
		disp.Start()
		t.Cleanup(disp.Stop)
	}

	srv := New(Deps{
		Verifier:   slack.NewVerifierAt(testSecret, func() time.Time { return testNow }),
		Dispatcher: disp,
		Engine:     analysisEngine,
		Store:      invoiceStore,
		BotUserID:  testBotUserID,
	})

	return fixture{handler: srv.Router(), poster: poster, store: invoiceStore}
}

func signedRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	timestamp := fmt.Sprintf("%d", testNow.Unix())

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte("v0:" + timestamp + ":" + body))
	signature := "v0=" + hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewBufferString(body))
	req.Header.Set("X-Slack-Request-Timestamp", timestamp)
	req.Header.Set("X-Slack-Signature", signature)
	return req
}

func TestSlackEventsEndpoint(t *testing.T) {
	t.Run("challenge handshake echoes the token", func(t *testing.T) {
		f := newFixture(t, false, 8)

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, signedRequest(t, `{"type":"url_verification","challenge":"abc123"}`))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"challenge":"abc123"}`, rec.Body.String())
	})

	t.Run("invalid signature is rejected with 401", func(t *testing.T) {
		f := newFixture(t, false, 8)

		req := signedRequest(t, `{"type":"url_verification","challenge":"abc123"}`)
		req.Header.Set("X-Slack-Signature", "v0=deadbeef")

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing signature headers are rejected", func(t *testing.T) {
		f := newFixture(t, false, 8)

		req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewBufferString(`{}`))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("verified message event is acknowledged immediately", func(t *testing.T) {
		f := newFixture(t, false, 8)

		body := `{"type":"event_callback","event":{"type":"message","channel":"C01","user":"U42","text":"hi","ts":"1.0"}}`
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, signedRequest(t, body))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bot-authored event produces no reply", func(t *testing.T) {
		f := newFixture(t, true, 8)

		body := fmt.Sprintf(`{"type":"event_callback","event":{"type":"message","channel":"C01","user":"%s","text":"echo","ts":"1.0"}}`, testBotUserID)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, signedRequest(t, body))
		require.Equal(t, http.StatusOK, rec.Code)

		select {
		case text := <-f.poster.posted:
			t.Fatalf("unexpected outbound reply: %s", text)
		case <-time.After(200 * time.Millisecond):
		}
	})

	t.Run("unrecognized events are acknowledged and dropped", func(t *testing.T) {
		f := newFixture(t, false, 8)

		body := `{"type":"event_callback","event":{"type":"reaction_added"}}`
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, signedRequest(t, body))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("full queue pushes back with 503", func(t *testing.T) {
		f := newFixture(t, false, 1)

		body := `{"type":"event_callback","event":{"type":"message","channel":"C01","user":"U42","text":"hi","ts":"1.0"}}`

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, signedRequest(t, body))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		f.handler.ServeHTTP(rec, signedRequest(t, body))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestAnalyzeEndpoint(t *testing.T) {
	f := newFixture(t, false, 8)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/analyze", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Recommendations []string `json:"recommendations"`
		Anomalies       []string `json:"anomalies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, resp.Recommendations, 4)
	assert.Contains(t, resp.Recommendations[0], "Invoice 2 from Supplier B")
	require.Len(t, resp.Anomalies, 1)
	assert.Equal(t, "Invoice 4 from Supplier D has an unusually high amount of $3000.", resp.Anomalies[0])
}

func TestPayInvoiceEndpoint(t *testing.T) {
	t.Run("numeric id pays the invoice", func(t *testing.T) {
		f := newFixture(t, false, 8)

		req := httptest.NewRequest(http.MethodPost, "/pay_invoice", bytes.NewBufferString(`{"invoice_id": 2}`))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message":"Invoice 2 marked as paid."}`, rec.Body.String())
	})

	t.Run("string id pays the invoice", func(t *testing.T) {
		f := newFixture(t, false, 8)

		req := httptest.NewRequest(http.MethodPost, "/pay_invoice", bytes.NewBufferString(`{"invoice_id": "3"}`))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message":"Invoice 3 marked as paid."}`, rec.Body.String())
	})

	t.Run("paying twice returns 404", func(t *testing.T) {
		f := newFixture(t, false, 8)

		req := httptest.NewRequest(http.MethodPost, "/pay_invoice", bytes.NewBufferString(`{"invoice_id": 1}`))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		req = httptest.NewRequest(http.MethodPost, "/pay_invoice", bytes.NewBufferString(`{"invoice_id": 1}`))
		rec = httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"Invoice not found or already paid."}`, rec.Body.String())
	})

	t.Run("unknown id returns 404", func(t *testing.T) {
		f := newFixture(t, false, 8)

		req := httptest.NewRequest(http.MethodPost, "/pay_invoice", bytes.NewBufferString(`{"invoice_id": 999}`))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing id returns 400", func(t *testing.T) {
		f := newFixture(t, false, 8)

		req := httptest.NewRequest(http.MethodPost, "/pay_invoice", bytes.NewBufferString(`{}`))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, false, 8)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
