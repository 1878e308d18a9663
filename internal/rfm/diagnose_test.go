package rfm

import (
	"testing"
	"time"

	"github.com/ignite/rfm-dashboard/internal/dataset"
)

func TestDiagnose(t *testing.T) {
	ts := time.Date(2011, 12, 1, 9, 0, 0, 0, time.UTC)
	raw := []dataset.Transaction{
		// 11111: healthy customer (would be in the table)
		{CustomerID: 11111, Invoice: "540001", Quantity: 5, UnitPrice: 20, Timestamp: ts},
		// 22222: returns exceed purchases
		{CustomerID: 22222, Invoice: "540002", Quantity: 2, UnitPrice: 10, Timestamp: ts},
		{CustomerID: 22222, Invoice: "540003", Quantity: -5, UnitPrice: 10, Timestamp: ts},
		// 33333: every invoice cancelled
		{CustomerID: 33333, Invoice: "C540004", Quantity: -3, UnitPrice: 15, Timestamp: ts},
		{CustomerID: 33333, Invoice: "C540005", Quantity: -1, UnitPrice: 8, Timestamp: ts},
		// 44444: some cancellations, negligible net spend
		{CustomerID: 44444, Invoice: "540006", Quantity: 1, UnitPrice: 12, Timestamp: ts},
		{CustomerID: 44444, Invoice: "C540007", Quantity: -1, UnitPrice: 7, Timestamp: ts},
		// 55555: positive spend, but all rows fail quantity/price checks
		{CustomerID: 55555, Invoice: "540008", Quantity: 50, UnitPrice: 0, Timestamp: ts},
		{CustomerID: 55555, Invoice: "540009", Quantity: 3, UnitPrice: 25, Timestamp: ts},
	}

	tests := []struct {
		name     string
		customer int64
		want     ExclusionReason
	}{
		{"unknown id", 99999, ReasonNotInDataset},
		{"negative balance", 22222, ReasonNonPositiveSpend},
		{"fully cancelled", 33333, ReasonCancellations},
		{"mostly cancelled", 44444, ReasonCancellations},
		{"generic data quality", 55555, ReasonDataQuality},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Diagnose(raw, tt.customer)
			if d.Reason != tt.want {
				t.Errorf("Diagnose(%d).Reason = %s, want %s (detail: %s)", tt.customer, d.Reason, tt.want, d.Detail)
			}
		})
	}
}

func TestDiagnoseFullyCancelledBeatsNetSpend(t *testing.T) {
	// An all-cancelled history usually has negative net spend; the
	// cancellation cause must still win.
	ts := time.Date(2011, 12, 1, 9, 0, 0, 0, time.UTC)
	raw := []dataset.Transaction{
		{CustomerID: 777, Invoice: "C550000", Quantity: -10, UnitPrice: 30, Timestamp: ts},
	}

	d := Diagnose(raw, 777)
	if d.Reason != ReasonCancellations {
		t.Errorf("Reason = %s, want %s", d.Reason, ReasonCancellations)
	}
	if d.NetSpend >= 0 {
		t.Errorf("NetSpend = %f, expected negative", d.NetSpend)
	}
	if d.CancelledRows != 1 || d.RawRows != 1 {
		t.Errorf("counts = %d/%d, want 1/1", d.CancelledRows, d.RawRows)
	}
}

func TestDiagnoseIsReadOnly(t *testing.T) {
	ts := time.Date(2011, 12, 1, 9, 0, 0, 0, time.UTC)
	raw := []dataset.Transaction{
		{CustomerID: 123, Invoice: "540100", Quantity: 1, UnitPrice: 5, Timestamp: ts},
	}
	before := raw[0]

	Diagnose(raw, 123)
	if raw[0] != before {
		t.Error("Diagnose mutated the raw dataset")
	}
}
