package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostMessage(t *testing.T) {
	t.Run("posts JSON with bearer authorization", func(t *testing.T) {
		var got postMessageRequest
		var gotAuth string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/chat.postMessage", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Write([]byte(`{"ok":true}`))
		}))
		defer ts.Close()

		client := NewClient("xoxb-test", ts.URL)
		err := client.PostMessage(context.Background(), "C01", "hello", "1.0")
		require.NoError(t, err)

		assert.Equal(t, "Bearer xoxb-test", gotAuth)
		assert.Equal(t, "C01", got.Channel)
		assert.Equal(t, "hello", got.Text)
		assert.Equal(t, "1.0", got.ThreadTS)
	})

	t.Run("ok false is an API failure", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
		}))
		defer ts.Close()

		client := NewClient("xoxb-test", ts.URL)
		err := client.PostMessage(context.Background(), "C01", "hello", "")
		assert.ErrorIs(t, err, ErrAPIFailure)
	})
}

func TestFileDownloadURL(t *testing.T) {
	t.Run("queries files.info with GET and a file argument", func(t *testing.T) {
		var gotMethod, gotFile, gotAuth string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotFile = r.URL.Query().Get("file")
			gotAuth = r.Header.Get("Authorization")
			require.Equal(t, "/files.info", r.URL.Path)
			w.Write([]byte(`{"ok":true,"file":{"id":"F123","name":"invoices.csv","url_private_download":"https://files.example.com/f123"}}`))
		}))
		defer ts.Close()

		client := NewClient("xoxb-test", ts.URL)
		downloadURL, err := client.FileDownloadURL(context.Background(), "F123")
		require.NoError(t, err)

		assert.Equal(t, "https://files.example.com/f123", downloadURL)
		assert.Equal(t, http.MethodGet, gotMethod)
		assert.Equal(t, "F123", gotFile)
		assert.Equal(t, "Bearer xoxb-test", gotAuth)
	})

	t.Run("ok false is an API failure", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"ok":false,"error":"file_not_found"}`))
		}))
		defer ts.Close()

		client := NewClient("xoxb-test", ts.URL)
		_, err := client.FileDownloadURL(context.Background(), "F404")
		assert.ErrorIs(t, err, ErrAPIFailure)
	})

	t.Run("missing download URL is an API failure", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"ok":true,"file":{"id":"F123"}}`))
		}))
		defer ts.Close()

		client := NewClient("xoxb-test", ts.URL)
		_, err := client.FileDownloadURL(context.Background(), "F123")
		assert.ErrorIs(t, err, ErrAPIFailure)
	})
}
