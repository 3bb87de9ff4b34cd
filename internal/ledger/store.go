// Package ledger records the outcome of completed call attempts. The ledger
// is append-only: rows are never rewritten, and re-finalizing a call id
// appends a new row rather than failing — readers take the last row per call
// id.
package ledger

import (
	"time"

	"github.com/juanpgarcia/cobrabot/pkg/types"
)

// Record is one immutable row: the summary of one finished call attempt.
type Record struct {
	Fecha        time.Time
	CallID       string
	Cedula       string
	Nombre       string
	Celular      string
	Producto     string
	DiasMora     int
	SaldoMora    float64
	Probabilidad float64
	Segmento     string
	Resultado    types.Resolution
	Monto        float64
	DuracionSeg  float64
}

// Store appends completed-call records. Implementations serialize writers;
// the dialer is the single writer in the default deployment.
type Store interface {
	Append(rec Record) error
	Close() error
}
