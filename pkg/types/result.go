package types

import "time"

// Resolution classifies a finished call attempt.
type Resolution string

const (
	ResolucionExitosa      Resolution = "EXITOSO"
	ResolucionSinAcuerdo   Resolution = "SIN_ACUERDO"
	ResolucionSinContestar Resolution = "SIN_CONTESTAR"
	ResolucionTimeout      Resolution = "TIMEOUT"
	ResolucionError        Resolution = "ERROR"
)

// TurnRecord is one utterance in the conversation history.
type TurnRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Rol       string    `json:"rol"` // "bot" | "cliente"
	Texto     string    `json:"texto"`
}

// CallResult is the frozen summary of one engine run. It is the only output
// the rest of the system consumes from a conversation.
type CallResult struct {
	CallID              string       `json:"call_id"`
	Cedula              string       `json:"cedula"`
	Nombre              string       `json:"nombre"`
	Inicio              time.Time    `json:"inicio"`
	DuracionSegundos    int          `json:"duracion_segundos"`
	Turnos              int          `json:"turnos"`
	IdentidadConfirmada bool         `json:"identidad_confirmada"`
	AceptoOferta        bool         `json:"acepto_oferta"`
	AceptoAbono         bool         `json:"acepto_abono"`
	MontoAcordado       float64      `json:"monto_acordado"`
	Resultado           Resolution   `json:"resultado"`
	Historial           []TurnRecord `json:"historial"`
}
