package store

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"invoicebot/internal/logger"
	"invoicebot/pkg/models"
)

// Store is a mutex-guarded in-memory invoice batch. It stands in for a real
// invoice system of record so the pay action has something to mutate; it is
// never reset during the process lifetime.
type Store struct {
	mu       sync.Mutex
	invoices []models.Invoice
	log      zerolog.Logger
}

// New creates a store holding the given batch.
func New(invoices []models.Invoice) *Store {
	batch := make([]models.Invoice, len(invoices))
	copy(batch, invoices)
	return &Store{
		invoices: batch,
		log:      logger.WithComponent("store"),
	}
}

// NewWithDemoData creates a store seeded with the demo invoice batch.
func NewWithDemoData() *Store {
	return New(demoInvoices())
}

// Snapshot returns a copy of the current batch. Callers own the copy and may
// sort or mutate it freely.
func (s *Store) Snapshot() []models.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make([]models.Invoice, len(s.invoices))
	copy(batch, s.invoices)
	return batch
}

// Pay transitions the invoice with the given id from unpaid to paid.
// Returns ErrNotFoundOrAlreadyPaid if no unpaid invoice matches; paying an
// id twice fails the second time. Only one concurrent caller can win.
func (s *Store) Pay(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.invoices {
		if s.invoices[i].ID == id && s.invoices[i].Status == models.StatusUnpaid {
			s.invoices[i].Status = models.StatusPaid
			s.log.Info().Str("invoice_id", id).Msg("Invoice marked as paid")
			return nil
		}
	}

	return ErrNotFoundOrAlreadyPaid
}

func demoInvoices() []models.Invoice {
	return []models.Invoice{
		{ID: "1", Supplier: "Supplier A", DueDate: date(2025, 2, 5), Amount: decimal.NewFromInt(1500), Discount: 5, PaymentTerms: "Net 30", Status: models.StatusUnpaid},
		{ID: "2", Supplier: "Supplier B", DueDate: date(2025, 2, 1), Amount: decimal.NewFromInt(1200), Discount: 2, PaymentTerms: "Net 15", Status: models.StatusUnpaid},
		{ID: "3", Supplier: "Supplier C", DueDate: date(2025, 2, 10), Amount: decimal.NewFromInt(2000), Discount: 10, PaymentTerms: "Net 45", Status: models.StatusUnpaid},
		{ID: "4", Supplier: "Supplier D", DueDate: date(2025, 2, 3), Amount: decimal.NewFromInt(3000), Discount: 0, PaymentTerms: "Net 60", Status: models.StatusUnpaid},
	}
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
