package conversation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/juanpgarcia/cobrabot/pkg/types"
)

// Affirmative and negative lexicons, matched as case-insensitive substrings
// of the transcript. Same phrase lists the call-center script was tuned on.
var confirmaciones = []string{
	"sí", "si", "claro", "por supuesto", "correcto", "exacto",
	"afirmativo", "ok", "okay", "dale", "bueno", "está bien",
	"de acuerdo", "acepto", "confirmo", "yes", "eso es",
	"así es", "efectivamente", "positivo",
}

var negaciones = []string{
	"no", "nop", "negativo", "para nada", "imposible",
	"no puedo", "no tengo", "no me es posible", "difícil",
	"complicado", "ahora no", "en este momento no",
}

func esConfirmacion(texto string) bool {
	texto = strings.ToLower(strings.TrimSpace(texto))
	if texto == "" {
		return false
	}
	for _, c := range confirmaciones {
		if strings.Contains(texto, c) {
			return true
		}
	}
	return false
}

func esNegacion(texto string) bool {
	texto = strings.ToLower(strings.TrimSpace(texto))
	if texto == "" {
		return false
	}
	for _, n := range negaciones {
		if strings.Contains(texto, n) {
			return true
		}
	}
	return false
}

func digitsOf(texto string) string {
	var b strings.Builder
	for _, r := range texto {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func containsSub(haystack, needle string) bool {
	return needle != "" && strings.Contains(haystack, needle)
}

var espacios = regexp.MustCompile(`\s+`)

// limpiar collapses whitespace so the TTS gets a single clean line.
func limpiar(texto string) string {
	return espacios.ReplaceAllString(strings.TrimSpace(texto), " ")
}

// FormatMoneda renders a peso amount the way it should be spoken: a
// millions/thousands decomposition instead of a digit-by-digit reading.
func FormatMoneda(valor float64) string {
	v := int64(valor)
	switch {
	case v >= 1_000_000:
		millones := v / 1_000_000
		resto := (v % 1_000_000) / 1_000
		if resto > 0 {
			return fmt.Sprintf("%d millones %d mil pesos", millones, resto)
		}
		return fmt.Sprintf("%d millones de pesos", millones)
	case v >= 1_000:
		return fmt.Sprintf("%d mil pesos", v/1_000)
	default:
		return fmt.Sprintf("%d pesos", v)
	}
}

const (
	msgIdentificacion = "Para continuar, por favor confirme los últimos cuatro dígitos de su número de cédula."

	msgIdentidadOK = "Perfecto, gracias por confirmar su identidad."

	msgIdentidadFallida = "Lo siento, no pudimos confirmar su identidad. " +
		"Por favor comuníquese con nuestra línea de atención. Hasta luego."

	msgRepetirOferta = "Disculpe, no entendí su respuesta. " +
		"¿Puede realizar el pago completo el día de hoy? Por favor responda sí o no."

	msgRepetirAbono = "Disculpe, no entendí su respuesta. " +
		"¿Le interesa la opción de realizar un abono? Por favor responda sí o no."

	msgCierreSinAcuerdo = "Entendemos su situación. Le recordamos que es importante normalizar su obligación " +
		"para evitar reportes a centrales de riesgo y procesos de cobro adicionales. " +
		"Si tiene alguna duda, puede comunicarse con nuestra línea de atención al cliente. " +
		"Gracias por su tiempo. Hasta luego."

	msgError = "Disculpe, hemos tenido un problema técnico. " +
		"Por favor comuníquese con nuestra línea de atención. Hasta luego."
)

func msgSaludo(c types.Client) string {
	return limpiar(fmt.Sprintf(
		"Buenos días, le habla el asistente virtual del banco. ¿Me comunico con %s?",
		c.Nombre))
}

func msgOferta(c types.Client) string {
	if c.TieneCampana && c.ScriptOferta != "" {
		return limpiar(c.ScriptOferta)
	}
	return limpiar(fmt.Sprintf(
		"Le informamos que su producto %s presenta un saldo en mora de %s con %d días de atraso. "+
			"El valor total a pagar hoy para normalizar su obligación es de %s, "+
			"que incluye su cuota y los gastos de cobranza. ¿Puede realizar este pago el día de hoy?",
		c.TipoProducto, FormatMoneda(c.SaldoMora), c.DiasMora, FormatMoneda(c.TotalAPagar)))
}

func msgAbono(c types.Client) string {
	if c.ScriptAbono != "" {
		return limpiar(c.ScriptAbono)
	}
	return limpiar(fmt.Sprintf(
		"Entiendo. Como alternativa, puede realizar un abono mínimo de %s "+
			"para demostrar su voluntad de pago y evitar que su obligación pase a cobro jurídico. "+
			"¿Le interesa esta opción?",
		FormatMoneda(MinAbono(c.TotalAPagar))))
}

func msgCierreExitoso(monto float64) string {
	return limpiar(fmt.Sprintf(
		"Excelente. Queda registrado su compromiso de pago por %s. "+
			"Recuerde que puede realizar el pago a través de nuestra aplicación móvil, "+
			"en cualquier oficina del banco, o en puntos de pago autorizados. "+
			"Gracias por su atención. Que tenga un excelente día.",
		FormatMoneda(monto)))
}
