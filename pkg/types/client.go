package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Client is one delinquent account pulled from the CTI file. The dialer builds
// it once at ingestion; Attempts and LastAttempt are mutated by the dialer
// only, never by the conversation engine.
type Client struct {
	Cedula       string  `json:"cedula"`
	Nombre       string  `json:"nombre"`
	Celular      string  `json:"celular"`
	Producto     string  `json:"producto"`
	TipoProducto string  `json:"tipo_producto"`
	DiasMora     int     `json:"dias_mora"`
	SaldoMora    float64 `json:"saldo_mora"`
	PagoMinimo   float64 `json:"pago_minimo"`
	GAC          float64 `json:"gac"`
	TotalAPagar  float64 `json:"total_a_pagar"`
	TieneCampana bool    `json:"tiene_campana"`
	Mecanismo    string  `json:"mecanismo,omitempty"`

	// Scoring output from the ML pipeline, consumed as-is.
	Probabilidad float64 `json:"probabilidad"`
	Segmento     string  `json:"segmento"`

	// Pre-written campaign scripts; empty means the engine uses its
	// standard wording.
	ScriptOferta string `json:"script_oferta,omitempty"`
	ScriptAbono  string `json:"script_abono,omitempty"`

	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"last_attempt,omitzero"`
}

// Channel variable names shared between the dialer (Originate) and the AGI
// bridge (GET VARIABLE). The dialplan passes them through untouched.
const (
	VarCedula       = "CLIENTE_CEDULA"
	VarNombre       = "CLIENTE_NOMBRE"
	VarCelular      = "CLIENTE_CELULAR"
	VarProducto     = "CLIENTE_PRODUCTO"
	VarTipoProducto = "CLIENTE_TIPO_PRODUCTO"
	VarDiasMora     = "CLIENTE_DIAS_MORA"
	VarSaldoMora    = "CLIENTE_SALDO_MORA"
	VarPagoMinimo   = "CLIENTE_PAGO_MINIMO"
	VarGAC          = "CLIENTE_GAC"
	VarTotalAPagar  = "CLIENTE_TOTAL_PAGAR"
	VarTieneCampana = "CLIENTE_TIENE_CAMPANA"
	VarMecanismo    = "CLIENTE_MECANISMO"
	VarProbabilidad = "CLIENTE_PROBABILIDAD"
	VarSegmento     = "CLIENTE_SEGMENTO"
	VarScriptOferta = "CLIENTE_SCRIPT_OFERTA"
	VarScriptAbono  = "CLIENTE_SCRIPT_ABONO"
)

// Result variable names written back by the bridge before hangup.
const (
	VarResultado = "VOICEBOT_RESULTADO"
	VarMonto     = "VOICEBOT_MONTO"
	VarDuracion  = "VOICEBOT_DURACION"
	VarTurnos    = "VOICEBOT_TURNOS"
)

// scriptVarLimit caps the script payload carried through Originate; AMI
// truncates very long variable values.
const scriptVarLimit = 200

// ChannelVariables flattens the client into the CLIENTE_* map sent with
// Originate.
func (c Client) ChannelVariables() map[string]string {
	campana := "false"
	if c.TieneCampana {
		campana = "true"
	}
	return map[string]string{
		VarCedula:       c.Cedula,
		VarNombre:       c.Nombre,
		VarCelular:      c.Celular,
		VarProducto:     c.Producto,
		VarTipoProducto: c.TipoProducto,
		VarDiasMora:     strconv.Itoa(c.DiasMora),
		VarSaldoMora:    strconv.FormatFloat(c.SaldoMora, 'f', -1, 64),
		VarPagoMinimo:   strconv.FormatFloat(c.PagoMinimo, 'f', -1, 64),
		VarGAC:          strconv.FormatFloat(c.GAC, 'f', -1, 64),
		VarTotalAPagar:  strconv.FormatFloat(c.TotalAPagar, 'f', -1, 64),
		VarTieneCampana: campana,
		VarMecanismo:    c.Mecanismo,
		VarProbabilidad: strconv.FormatFloat(c.Probabilidad, 'f', -1, 64),
		VarSegmento:     c.Segmento,
		VarScriptOferta: truncate(c.ScriptOferta, scriptVarLimit),
		VarScriptAbono:  truncate(c.ScriptAbono, scriptVarLimit),
	}
}

// ClientFromVariables rebuilds a Client from channel variables on the AGI
// side. Identity fields are required; a missing or malformed numeric field is
// an error rather than a silent zero.
func ClientFromVariables(get func(name string) string) (Client, error) {
	c := Client{
		Cedula:       get(VarCedula),
		Nombre:       get(VarNombre),
		Celular:      get(VarCelular),
		Producto:     get(VarProducto),
		TipoProducto: get(VarTipoProducto),
		Mecanismo:    get(VarMecanismo),
		Segmento:     get(VarSegmento),
		ScriptOferta: get(VarScriptOferta),
		ScriptAbono:  get(VarScriptAbono),
		TieneCampana: get(VarTieneCampana) == "true",
	}
	if c.Cedula == "" {
		return Client{}, fmt.Errorf("missing %s", VarCedula)
	}
	if c.Celular == "" {
		return Client{}, fmt.Errorf("missing %s", VarCelular)
	}
	if c.Segmento == "" {
		c.Segmento = "D"
	}

	var err error
	if c.DiasMora, err = parseIntVar(get, VarDiasMora); err != nil {
		return Client{}, err
	}
	if c.SaldoMora, err = parseFloatVar(get, VarSaldoMora); err != nil {
		return Client{}, err
	}
	if c.PagoMinimo, err = parseFloatVar(get, VarPagoMinimo); err != nil {
		return Client{}, err
	}
	if c.GAC, err = parseFloatVar(get, VarGAC); err != nil {
		return Client{}, err
	}
	if c.TotalAPagar, err = parseFloatVar(get, VarTotalAPagar); err != nil {
		return Client{}, err
	}
	if c.Probabilidad, err = parseFloatVar(get, VarProbabilidad); err != nil {
		return Client{}, err
	}
	return c, nil
}

// UltimosCuatro returns the last four digits of the cedula, or the whole
// cedula when shorter. Used by the identity check.
func (c Client) UltimosCuatro() string {
	if len(c.Cedula) >= 4 {
		return c.Cedula[len(c.Cedula)-4:]
	}
	return c.Cedula
}

func parseIntVar(get func(string) string, name string) (int, error) {
	raw := strings.TrimSpace(get(name))
	if raw == "" {
		return 0, fmt.Errorf("missing %s", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return v, nil
}

func parseFloatVar(get func(string) string, name string) (float64, error) {
	raw := strings.TrimSpace(get(name))
	if raw == "" {
		return 0, fmt.Errorf("missing %s", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return v, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
