package dialer

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/juanpgarcia/cobrabot/pkg/types"
)

// LoadCTI reads the enriched CTI file (CSV export of the scoring pipeline)
// and returns the call queue: clients with a usable phone number, ordered by
// descending payment probability. maxCalls > 0 caps the queue size.
func LoadCTI(path string, maxCalls int) ([]*types.Client, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dialer: open cti %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dialer: read cti %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("dialer: cti %s has no data rows", path)
	}

	cols := indexColumns(rows[0])
	var queue []*types.Client
	for _, row := range rows[1:] {
		get := func(names ...string) string {
			for _, n := range names {
				if i, ok := cols[n]; ok && i < len(row) {
					return strings.TrimSpace(row[i])
				}
			}
			return ""
		}
		c := &types.Client{
			Cedula:       get("cedula"),
			Nombre:       get("nombre", "name"),
			Celular:      NormalizePhone(get("celular")),
			Producto:     get("producto"),
			TipoProducto: get("tipo_producto"),
			DiasMora:     atoi(get("dias_mora")),
			SaldoMora:    atof(get("saldo_mora")),
			PagoMinimo:   atof(get("pago_minimo")),
			GAC:          atof(get("gac", "gac_proyectado")),
			TotalAPagar:  atof(get("total_a_pagar")),
			TieneCampana: isTrue(get("campana", "campaign")),
			Mecanismo:    get("mecanismo", "mecanismo_detectado"),
			Probabilidad: atof(get("probabilidad_pago_ml", "probabilidad_pago")),
			Segmento:     get("segmento_ml", "segmento"),
			ScriptOferta: get("oferta_principal"),
			ScriptAbono:  get("negociacion_abono"),
		}
		if c.Segmento == "" {
			c.Segmento = "D"
		}
		// Entries without a dialable number are dropped, not queued.
		if c.Celular == "" {
			continue
		}
		queue = append(queue, c)
	}

	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].Probabilidad > queue[j].Probabilidad
	})
	if maxCalls > 0 && len(queue) > maxCalls {
		queue = queue[:maxCalls]
	}
	return queue, nil
}

// NormalizePhone strips non-digits and prepends the Colombian country code to
// a bare 10-digit mobile number (they start with 3).
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	tel := b.String()
	if len(tel) == 10 && strings.HasPrefix(tel, "3") {
		tel = "57" + tel
	}
	return tel
}

func indexColumns(headers []string) map[string]int {
	cols := make(map[string]int, len(headers))
	for i, h := range headers {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.ReplaceAll(key, " ", "_")
		cols[key] = i
	}
	return cols
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func isTrue(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "si", "sí", "yes":
		return true
	}
	return false
}
