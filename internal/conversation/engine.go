// Package conversation implements the negotiation script as a pure state
// machine. The engine performs no I/O: it maps (current state, client
// attributes, last utterance) to (bot utterance, next state), accumulating a
// turn history and outcome flags along the way.
package conversation

import (
	"time"

	"github.com/juanpgarcia/cobrabot/pkg/types"
)

// State is one position in the negotiation script.
type State string

const (
	EstadoInicio              State = "INICIO"
	EstadoSaludo              State = "SALUDO"
	EstadoIdentificacion      State = "IDENTIFICACION"
	EstadoValidacionIdentidad State = "VALIDACION_IDENTIDAD"
	EstadoOfertaPrincipal     State = "OFERTA_PRINCIPAL"
	EstadoEsperaOferta        State = "ESPERA_RESPUESTA_OFERTA"
	EstadoNegociacionAbono    State = "NEGOCIACION_ABONO"
	EstadoEsperaAbono         State = "ESPERA_RESPUESTA_ABONO"
	EstadoCierreExitoso       State = "CIERRE_EXITOSO"
	EstadoCierreSinAcuerdo    State = "CIERRE_SIN_ACUERDO"
	EstadoFin                 State = "FIN"
	EstadoError               State = "ERROR"
)

// IsWaiting reports whether the state expects the client to speak before the
// script can advance.
func (s State) IsWaiting() bool {
	switch s {
	case EstadoSaludo, EstadoIdentificacion, EstadoEsperaOferta, EstadoEsperaAbono:
		return true
	}
	return false
}

// MinAbono is the smallest partial payment offered during negotiation:
// 10% of the total due, floored at 50,000 pesos.
func MinAbono(totalAPagar float64) float64 {
	abono := totalAPagar * 0.10
	if abono < 50000 {
		return 50000
	}
	return abono
}

// Engine drives one conversation for one client. It holds the session state
// and is not safe for concurrent use; each call leg owns exactly one Engine.
type Engine struct {
	callID  string
	cliente types.Client
	estado  State
	inicio  time.Time

	historial           []types.TurnRecord
	identidadConfirmada bool
	aceptoOferta        bool
	aceptoAbono         bool
	montoAcordado       float64

	now func() time.Time
}

// New creates an engine in EstadoInicio for the given client. The client's
// attributes are read but never mutated.
func New(callID string, cliente types.Client) *Engine {
	e := &Engine{
		callID:  callID,
		cliente: cliente,
		estado:  EstadoInicio,
		now:     time.Now,
	}
	e.inicio = e.now()
	return e
}

// State returns the current script position.
func (e *Engine) State() State { return e.estado }

// NextMessage advances the script. utterance is the transcript of what the
// client just said; pass "" when the script advances on its own. The returned
// message is what the bot should speak next; an empty message with a waiting
// state means "listen now".
func (e *Engine) NextMessage(utterance string) (string, State) {
	if utterance != "" {
		e.addTurn("cliente", utterance)
	}

	switch e.estado {
	case EstadoInicio:
		return e.say(msgSaludo(e.cliente), EstadoSaludo)

	case EstadoSaludo:
		return e.say(msgIdentificacion, EstadoIdentificacion)

	case EstadoIdentificacion:
		return e.validarIdentidad(utterance)

	case EstadoValidacionIdentidad:
		return e.say(msgOferta(e.cliente), EstadoOfertaPrincipal)

	case EstadoOfertaPrincipal:
		e.estado = EstadoEsperaOferta
		return "", EstadoEsperaOferta

	case EstadoEsperaOferta:
		return e.procesarOferta(utterance)

	case EstadoNegociacionAbono:
		e.estado = EstadoEsperaAbono
		return "", EstadoEsperaAbono

	case EstadoEsperaAbono:
		return e.procesarAbono(utterance)

	case EstadoCierreExitoso, EstadoCierreSinAcuerdo:
		e.estado = EstadoFin
		return "", EstadoFin

	case EstadoFin:
		return "", EstadoFin

	default: // EstadoError or anything unrecoverable
		e.estado = EstadoFin
		return msgError, EstadoFin
	}
}

func (e *Engine) validarIdentidad(utterance string) (string, State) {
	if digitsOf(utterance) != "" && containsSub(digitsOf(utterance), e.cliente.UltimosCuatro()) ||
		esConfirmacion(utterance) {
		e.identidadConfirmada = true
		return e.say(msgIdentidadOK, EstadoValidacionIdentidad)
	}
	// Single attempt: an unverifiable answer ends the call.
	return e.say(msgIdentidadFallida, EstadoFin)
}

func (e *Engine) procesarOferta(utterance string) (string, State) {
	switch {
	case esConfirmacion(utterance):
		e.aceptoOferta = true
		e.montoAcordado = e.cliente.TotalAPagar
		return e.say(msgCierreExitoso(e.montoAcordado), EstadoCierreExitoso)
	case esNegacion(utterance):
		return e.say(msgAbono(e.cliente), EstadoNegociacionAbono)
	default:
		// Not understood: repeat the question and keep waiting.
		return e.say(msgRepetirOferta, EstadoEsperaOferta)
	}
}

func (e *Engine) procesarAbono(utterance string) (string, State) {
	switch {
	case esConfirmacion(utterance):
		e.aceptoAbono = true
		e.montoAcordado = MinAbono(e.cliente.TotalAPagar)
		return e.say(msgCierreExitoso(e.montoAcordado), EstadoCierreExitoso)
	case esNegacion(utterance):
		return e.say(msgCierreSinAcuerdo, EstadoCierreSinAcuerdo)
	default:
		return e.say(msgRepetirAbono, EstadoEsperaAbono)
	}
}

func (e *Engine) say(mensaje string, siguiente State) (string, State) {
	e.addTurn("bot", mensaje)
	e.estado = siguiente
	return mensaje, siguiente
}

func (e *Engine) addTurn(rol, texto string) {
	e.historial = append(e.historial, types.TurnRecord{
		Timestamp: e.now(),
		Rol:       rol,
		Texto:     texto,
	})
}

// Result freezes the session into its exportable summary. The resolution is
// EXITOSO when either the full payment or the partial payment was accepted.
func (e *Engine) Result() types.CallResult {
	resultado := types.ResolucionSinAcuerdo
	if e.aceptoOferta || e.aceptoAbono {
		resultado = types.ResolucionExitosa
	}
	historial := make([]types.TurnRecord, len(e.historial))
	copy(historial, e.historial)
	return types.CallResult{
		CallID:              e.callID,
		Cedula:              e.cliente.Cedula,
		Nombre:              e.cliente.Nombre,
		Inicio:              e.inicio,
		DuracionSegundos:    int(e.now().Sub(e.inicio).Seconds()),
		Turnos:              len(e.historial),
		IdentidadConfirmada: e.identidadConfirmada,
		AceptoOferta:        e.aceptoOferta,
		AceptoAbono:         e.aceptoAbono,
		MontoAcordado:       e.montoAcordado,
		Resultado:           resultado,
		Historial:           historial,
	}
}
