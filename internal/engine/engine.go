package engine

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"invoicebot/internal/logger"
	"invoicebot/pkg/models"
)

// Urgency levels for payment recommendations.
const (
	UrgencyHigh   = "High"
	UrgencyMedium = "Medium"
	UrgencyLow    = "Low"
)

// DefaultAnomalyThreshold flags invoices whose amount exceeds this value.
var DefaultAnomalyThreshold = decimal.NewFromInt(2500)

// Options configures an Engine.
type Options struct {
	// AnomalyThreshold overrides DefaultAnomalyThreshold when positive.
	AnomalyThreshold decimal.Decimal

	// Now supplies the reference time for due-date arithmetic.
	// Defaults to time.Now.
	Now func() time.Time
}

// Engine computes payment prioritization and anomaly reports over a batch of
// invoices. It performs no I/O and is safe for concurrent use.
type Engine struct {
	threshold decimal.Decimal
	now       func() time.Time
	log       zerolog.Logger
}

// Analysis is the combined output of one engine run.
type Analysis struct {
	Recommendations []string `json:"recommendations"`
	Anomalies       []string `json:"anomalies"`
}

// New creates an Engine with the given options.
func New(opts Options) *Engine {
	threshold := opts.AnomalyThreshold
	if threshold.IsZero() || threshold.IsNegative() {
		threshold = DefaultAnomalyThreshold
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		threshold: threshold,
		now:       now,
		log:       logger.WithComponent("engine"),
	}
}

// Analyze runs prioritization and anomaly detection over one batch.
func (e *Engine) Analyze(invoices []models.Invoice) Analysis {
	analysis := Analysis{
		Recommendations: e.Prioritize(invoices),
		Anomalies:       e.DetectAnomalies(invoices),
	}

	e.log.Info().
		Int("invoices", len(invoices)).
		Int("recommendations", len(analysis.Recommendations)).
		Int("anomalies", len(analysis.Anomalies)).
		Msg("Batch analyzed")

	return analysis
}

// Prioritize sorts invoices by due date ascending, breaking ties by larger
// discount first, and renders one recommendation line per invoice. Invoices
// with identical due date and discount keep their batch order. An empty batch
// yields an empty (non-nil) slice.
func (e *Engine) Prioritize(invoices []models.Invoice) []string {
	ordered := make([]models.Invoice, len(invoices))
	copy(ordered, invoices)

	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].DueDate.Equal(ordered[j].DueDate) {
			return ordered[i].DueDate.Before(ordered[j].DueDate)
		}
		return ordered[i].Discount > ordered[j].Discount
	})

	now := e.now()
	recommendations := make([]string, 0, len(ordered))
	for _, inv := range ordered {
		daysLeft := inv.DaysUntilDue(now)
		recommendations = append(recommendations, fmt.Sprintf(
			"Invoice %s from %s (Amount: $%s) is due on %s (%d days left). Discount: %s%%. Urgency: %s.",
			inv.ID,
			inv.Supplier,
			inv.Amount.String(),
			inv.DueDate.Format(models.DateLayout),
			daysLeft,
			formatDiscount(inv.Discount),
			Urgency(daysLeft),
		))
	}

	return recommendations
}

// DetectAnomalies flags invoices whose amount strictly exceeds the threshold.
// Output preserves batch order, independent of prioritization order.
func (e *Engine) DetectAnomalies(invoices []models.Invoice) []string {
	anomalies := make([]string, 0)
	for _, inv := range invoices {
		if inv.Amount.GreaterThan(e.threshold) {
			anomalies = append(anomalies, fmt.Sprintf(
				"Invoice %s from %s has an unusually high amount of $%s.",
				inv.ID, inv.Supplier, inv.Amount.String(),
			))
		}
	}
	return anomalies
}

// Urgency classifies days-until-due into a coarse three-level scale.
// Boundaries are inclusive on the lower side: exactly 3 days is High and
// exactly 7 days is Medium.
func Urgency(daysUntilDue int) string {
	switch {
	case daysUntilDue <= 3:
		return UrgencyHigh
	case daysUntilDue <= 7:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

func formatDiscount(discount float64) string {
	return strconv.FormatFloat(discount, 'f', -1, 64)
}
