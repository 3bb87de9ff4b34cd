package conversation

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juanpgarcia/cobrabot/pkg/types"
)

func testClient() types.Client {
	return types.Client{
		Cedula:       "1234567890",
		Nombre:       "Juan Pérez",
		Celular:      "573001234567",
		Producto:     "4532",
		TipoProducto: "TARJETA",
		DiasMora:     45,
		SaldoMora:    1500000,
		PagoMinimo:   450000,
		GAC:          48000,
		TotalAPagar:  498000,
		Probabilidad: 0.35,
		Segmento:     "C",
	}
}

// advance walks the engine through the opening turns up to the offer wait.
func advanceToOferta(t *testing.T, e *Engine) {
	t.Helper()
	_, st := e.NextMessage("") // saludo
	require.Equal(t, EstadoSaludo, st)
	_, st = e.NextMessage("sí, soy yo") // identificación prompt
	require.Equal(t, EstadoIdentificacion, st)
	_, st = e.NextMessage("7890") // identity ok
	require.Equal(t, EstadoValidacionIdentidad, st)
	_, st = e.NextMessage("") // oferta
	require.Equal(t, EstadoOfertaPrincipal, st)
	msg, st := e.NextMessage("") // wait for answer
	require.Equal(t, EstadoEsperaOferta, st)
	require.Empty(t, msg)
}

func TestIdentityMatchByDigits(t *testing.T) {
	e := New("c1", testClient())
	e.NextMessage("")
	e.NextMessage("aló")
	_, st := e.NextMessage("los últimos son 7 8 9 0")
	assert.Equal(t, EstadoValidacionIdentidad, st)
	assert.True(t, e.Result().IdentidadConfirmada)
}

func TestIdentityMismatchEndsCall(t *testing.T) {
	e := New("c1", testClient())
	e.NextMessage("")
	e.NextMessage("aló")
	msg, st := e.NextMessage("no sé")
	// "no sé" is neither the digits nor an affirmative: single attempt, no retry.
	require.Equal(t, EstadoFin, st)
	assert.Contains(t, msg, "no pudimos confirmar")
	res := e.Result()
	assert.False(t, res.IdentidadConfirmada)
	assert.Equal(t, types.ResolucionSinAcuerdo, res.Resultado)
}

func TestOfferAccepted(t *testing.T) {
	e := New("c1", testClient())
	advanceToOferta(t, e)

	msg, st := e.NextMessage("sí")
	require.Equal(t, EstadoCierreExitoso, st)
	assert.Contains(t, msg, "498 mil pesos")

	_, st = e.NextMessage("")
	require.Equal(t, EstadoFin, st)

	res := e.Result()
	assert.True(t, res.AceptoOferta)
	assert.False(t, res.AceptoAbono)
	assert.Equal(t, 498000.0, res.MontoAcordado)
	assert.Equal(t, types.ResolucionExitosa, res.Resultado)
}

func TestOfferRejectedThenAbonoRejected(t *testing.T) {
	e := New("c1", testClient())
	advanceToOferta(t, e)

	msg, st := e.NextMessage("no puedo pagar todo")
	require.Equal(t, EstadoNegociacionAbono, st)
	// min abono = max(0.10*498000, 50000) = 50000
	assert.Contains(t, msg, "50 mil pesos")

	_, st = e.NextMessage("")
	require.Equal(t, EstadoEsperaAbono, st)

	_, st = e.NextMessage("no")
	require.Equal(t, EstadoCierreSinAcuerdo, st)

	_, st = e.NextMessage("")
	require.Equal(t, EstadoFin, st)

	res := e.Result()
	assert.Equal(t, types.ResolucionSinAcuerdo, res.Resultado)
	assert.Equal(t, 0.0, res.MontoAcordado)
}

func TestAbonoAccepted(t *testing.T) {
	cliente := testClient()
	cliente.TotalAPagar = 900000
	e := New("c1", cliente)
	advanceToOferta(t, e)

	e.NextMessage("no tengo plata")
	e.NextMessage("") // wait
	_, st := e.NextMessage("bueno, de acuerdo")
	require.Equal(t, EstadoCierreExitoso, st)

	res := e.Result()
	assert.True(t, res.AceptoAbono)
	assert.Equal(t, 90000.0, res.MontoAcordado) // 10% > 50000 floor
	assert.Equal(t, types.ResolucionExitosa, res.Resultado)
}

func TestUnrecognizedReplyRepromptsAndStays(t *testing.T) {
	e := New("c1", testClient())
	advanceToOferta(t, e)

	msg, st := e.NextMessage("eh... mmm")
	require.Equal(t, EstadoEsperaOferta, st)
	assert.Contains(t, msg, "no entendí")

	// Still answerable after the re-prompt.
	_, st = e.NextMessage("sí")
	assert.Equal(t, EstadoCierreExitoso, st)
}

func TestMinAbono(t *testing.T) {
	assert.Equal(t, 50000.0, MinAbono(498000)) // 49800 floored
	assert.Equal(t, 50000.0, MinAbono(0))
	assert.Equal(t, 150000.0, MinAbono(1500000))
}

func TestFormatMoneda(t *testing.T) {
	cases := map[float64]string{
		1500000: "1 millones 500 mil pesos",
		2000000: "2 millones de pesos",
		498000:  "498 mil pesos",
		950:     "950 pesos",
	}
	for valor, want := range cases {
		assert.Equal(t, want, FormatMoneda(valor))
	}
}

func TestCampaignScriptOverridesOferta(t *testing.T) {
	cliente := testClient()
	cliente.TieneCampana = true
	cliente.ScriptOferta = "Tenemos una campaña especial para usted. ¿Acepta?"
	e := New("c1", cliente)
	e.NextMessage("")
	e.NextMessage("sí")
	e.NextMessage("7890")
	msg, _ := e.NextMessage("")
	assert.Equal(t, cliente.ScriptOferta, msg)
}

func TestClientNeverMutated(t *testing.T) {
	cliente := testClient()
	before := cliente
	e := New("c1", cliente)
	advanceToOferta(t, e)
	e.NextMessage("sí")
	assert.Equal(t, before, cliente)
}

// Identical (state, client, utterance) always yields identical
// (message, nextState).
func TestDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	properties.Property("same transcript, same path", prop.ForAll(
		func(utterances []string) bool {
			run := func() ([]string, State) {
				e := New("c1", testClient())
				var msgs []string
				msg, st := e.NextMessage("")
				msgs = append(msgs, msg)
				for _, u := range utterances {
					if st == EstadoFin {
						break
					}
					msg, st = e.NextMessage(u)
					msgs = append(msgs, msg)
				}
				return msgs, st
			}
			m1, s1 := run()
			m2, s2 := run()
			if s1 != s2 || len(m1) != len(m2) {
				return false
			}
			for i := range m1 {
				if m1[i] != m2[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.OneConstOf("sí", "no", "7890", "mmm", "claro", "no sé", "")),
	))
	properties.TestingRun(t)
}
