package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"invoicebot/internal/logger"
	"invoicebot/pkg/models"
)

// Service downloads hosted invoice files and parses them into records.
type Service struct {
	httpClient *http.Client
	token      string
	opts       ParseOptions
	log        zerolog.Logger
}

// NewService creates an ingestion service. The token authorizes downloads
// against the hosting platform's private file URLs.
func NewService(token string, opts ParseOptions) *Service {
	return &Service{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		token:      token,
		opts:       opts,
		log:        logger.WithComponent("ingest"),
	}
}

// FetchInvoices downloads the file at url and parses it as a delimited
// invoice table.
func (s *Service) FetchInvoices(ctx context.Context, url string) ([]models.Invoice, error) {
	const op = "FetchInvoices"

	data, err := s.download(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	invoices, err := ParseCSV(bytes.NewReader(data), s.opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info().
		Str("url", url).
		Int("invoices", len(invoices)).
		Msg("Invoice file ingested")

	return invoices, nil
}

func (s *Service) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrDownloadFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrDownloadFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrDownloadFailed, err)
	}

	return data, nil
}
