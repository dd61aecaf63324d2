package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"invoicebot/internal/logger"
)

// Client talks to the platform's Web API with bearer-token authorization.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a Client against the given API base URL
// (e.g. https://slack.com/api).
func NewClient(token, baseURL string) *Client {
	return &Client{
		token:      token,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logger.WithComponent("slack-client"),
	}
}

type postMessageRequest struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	File  struct {
		ID                 string `json:"id"`
		Name               string `json:"name"`
		URLPrivateDownload string `json:"url_private_download"`
	} `json:"file"`
}

// PostMessage posts text into a channel. A non-empty threadTS attaches the
// message as a threaded reply under the triggering message.
func (c *Client) PostMessage(ctx context.Context, channel, text, threadTS string) error {
	const op = "PostMessage"

	payload, err := json.Marshal(postMessageRequest{
		Channel:  channel,
		Text:     text,
		ThreadTS: threadTS,
	})
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", op, err)
	}

	resp, err := c.call(ctx, "chat.postMessage", payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.OK {
		return fmt.Errorf("%s: %w: %s", op, ErrAPIFailure, resp.Error)
	}

	c.log.Debug().
		Str("channel", channel).
		Str("thread_ts", threadTS).
		Msg("Message posted")

	return nil
}

// FileDownloadURL resolves a file id to its private download URL.
// files.info only accepts its arguments as a query string, not a JSON body.
func (c *Client) FileDownloadURL(ctx context.Context, fileID string) (string, error) {
	const op = "FileDownloadURL"

	resp, err := c.get(ctx, "files.info", url.Values{"file": {fileID}})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !resp.OK {
		return "", fmt.Errorf("%s: %w: %s", op, ErrAPIFailure, resp.Error)
	}
	if resp.File.URLPrivateDownload == "" {
		return "", fmt.Errorf("%s: %w: file %s has no download URL", op, ErrAPIFailure, fileID)
	}

	return resp.File.URLPrivateDownload, nil
}

func (c *Client) call(ctx context.Context, method string, payload []byte) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	return c.do(req, method)
}

func (c *Client) get(ctx context.Context, method string, params url.Values) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+method+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req, method)
}

func (c *Client) do(req *http.Request, method string) (*apiResponse, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrAPIFailure, method, resp.StatusCode)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", method, err)
	}

	return &apiResp, nil
}
