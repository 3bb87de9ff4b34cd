package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juanpgarcia/cobrabot/internal/ledger"
	"github.com/juanpgarcia/cobrabot/pkg/types"
)

func rec(callID, segmento string, resultado types.Resolution, monto, dur float64) ledger.Record {
	return ledger.Record{
		CallID:      callID,
		Segmento:    segmento,
		Resultado:   resultado,
		Monto:       monto,
		DuracionSeg: dur,
	}
}

func TestBuild(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	recs := []ledger.Record{
		rec("c1", "A", types.ResolucionExitosa, 498000, 90),
		rec("c2", "A", types.ResolucionSinAcuerdo, 0, 120),
		rec("c3", "B", types.ResolucionExitosa, 50000, 60),
		rec("c4", "B", types.ResolucionSinContestar, 0, 0),
		rec("c5", "C", types.ResolucionTimeout, 0, 300),
		rec("c6", "C", types.ResolucionError, 0, 10),
	}

	r, html, err := Build(recs, now)
	require.NoError(t, err)

	assert.Equal(t, ReportSchema, r.Schema)
	assert.Equal(t, 6, r.TotalLlamadas)
	assert.Equal(t, 2, r.Exitosas)
	assert.Equal(t, 1, r.SinAcuerdo)
	assert.Equal(t, 1, r.SinContestar)
	assert.Equal(t, 1, r.Timeouts)
	assert.Equal(t, 1, r.Errores)
	assert.InDelta(t, 2.0/6.0, r.TasaExito, 1e-9)
	assert.Equal(t, 548000.0, r.MontoRecuperado)
	assert.InDelta(t, 580.0/6.0, r.DuracionMedia, 1e-9)

	require.Len(t, r.PorSegmento, 3)
	assert.Equal(t, "A", r.PorSegmento[0].Segmento)
	assert.Equal(t, 2, r.PorSegmento[0].Llamadas)
	assert.Equal(t, 1, r.PorSegmento[0].Exitosas)
	assert.Equal(t, 498000.0, r.PorSegmento[0].Monto)
	assert.Equal(t, 0.5, r.PorSegmento[0].TasaExito)

	page := string(html)
	assert.Contains(t, page, "Llamadas: 6")
	assert.Contains(t, page, "Recuperado: $548000")
	assert.Contains(t, page, "<td>A</td>")
}

func TestBuildDeduplicatesCallIDs(t *testing.T) {
	recs := []ledger.Record{
		rec("c1", "A", types.ResolucionSinContestar, 0, 0),
		rec("c1", "A", types.ResolucionExitosa, 100000, 80),
	}

	r, _, err := Build(recs, time.Now())
	require.NoError(t, err)
	// Last row per call id wins.
	assert.Equal(t, 1, r.TotalLlamadas)
	assert.Equal(t, 1, r.Exitosas)
	assert.Equal(t, 0, r.SinContestar)
	assert.Equal(t, 100000.0, r.MontoRecuperado)
}

func TestBuildEmpty(t *testing.T) {
	r, html, err := Build(nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, r.TotalLlamadas)
	assert.Equal(t, 0.0, r.TasaExito)
	assert.NotEmpty(t, html)
}
