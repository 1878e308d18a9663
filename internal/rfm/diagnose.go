package rfm

import (
	"fmt"
	"strings"

	"github.com/ignite/rfm-dashboard/internal/dataset"
)

// ExclusionReason explains why a customer is absent from the feature table.
type ExclusionReason string

const (
	// ReasonNotInDataset: the id never appears in the raw data.
	ReasonNotInDataset ExclusionReason = "not_in_dataset"
	// ReasonNonPositiveSpend: returns meet or exceed purchases.
	ReasonNonPositiveSpend ExclusionReason = "non_positive_spend"
	// ReasonCancellations: the history is entirely or mostly cancelled invoices.
	ReasonCancellations ExclusionReason = "cancellations"
	// ReasonDataQuality: rows were dropped for non-positive quantity or price.
	ReasonDataQuality ExclusionReason = "data_quality"
)

// Diagnosis is the read-only explanation for a missing customer.
type Diagnosis struct {
	CustomerID    int64           `json:"customer_id"`
	Reason        ExclusionReason `json:"reason"`
	Detail        string          `json:"detail"`
	RawRows       int             `json:"raw_rows"`
	CancelledRows int             `json:"cancelled_rows"`
	NetSpend      float64         `json:"net_spend"`
}

// negligibleSpend is the threshold under which a history containing
// cancellations is attributed to them rather than to generic data quality.
const negligibleSpend = 10.0

// Diagnose re-examines the raw dataset for a customer missing from the
// feature table and reports the most specific exclusion cause. An
// all-cancelled history wins over the net-spend check: cancellations drive
// the spend negative, and naming the balance would hide the real cause.
func Diagnose(txns []dataset.Transaction, customerID int64) Diagnosis {
	d := Diagnosis{CustomerID: customerID}

	for _, txn := range txns {
		if txn.CustomerID != customerID {
			continue
		}
		d.RawRows++
		d.NetSpend += float64(txn.Quantity) * txn.UnitPrice
		if strings.Contains(txn.Invoice, CancellationMarker) {
			d.CancelledRows++
		}
	}

	switch {
	case d.RawRows == 0:
		d.Reason = ReasonNotInDataset
		d.Detail = fmt.Sprintf("customer %d never appears in the raw dataset", customerID)
	case d.CancelledRows == d.RawRows:
		d.Reason = ReasonCancellations
		d.Detail = fmt.Sprintf("all %d invoices are cancellations", d.RawRows)
	case d.NetSpend <= 0:
		d.Reason = ReasonNonPositiveSpend
		d.Detail = fmt.Sprintf("net spend is %.2f; returns meet or exceed purchases", d.NetSpend)
	case d.CancelledRows > 0 && d.NetSpend < negligibleSpend:
		d.Reason = ReasonCancellations
		d.Detail = fmt.Sprintf("%d of %d invoices are cancellations and only %.2f net spend remains",
			d.CancelledRows, d.RawRows, d.NetSpend)
	default:
		d.Reason = ReasonDataQuality
		d.Detail = "remaining rows have non-positive quantity or price and were dropped during cleaning"
	}
	return d
}
