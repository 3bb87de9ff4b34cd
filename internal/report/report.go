// Package report aggregates a campaign's ledger rows into a summary document:
// a JSON-serializable struct plus a rendered HTML page for the operations
// channel.
package report

import (
	"bytes"
	"html/template"
	"sort"
	"time"

	"github.com/juanpgarcia/cobrabot/internal/ledger"
	"github.com/juanpgarcia/cobrabot/pkg/types"
)

const ReportSchema = "cobrabot.campaign_report.v1"

type Report struct {
	Schema          string         `json:"schema"`
	GeneradoEn      time.Time      `json:"generado_en"`
	TotalLlamadas   int            `json:"total_llamadas"`
	Exitosas        int            `json:"exitosas"`
	SinAcuerdo      int            `json:"sin_acuerdo"`
	SinContestar    int            `json:"sin_contestar"`
	Timeouts        int            `json:"timeouts"`
	Errores         int            `json:"errores"`
	TasaExito       float64        `json:"tasa_exito"`
	MontoRecuperado float64        `json:"monto_recuperado"`
	DuracionMedia   float64        `json:"duracion_media_seg"`
	PorSegmento     []SegmentStats `json:"por_segmento"`
}

// TasaPct is the success rate as a percentage, for rendering.
func (r Report) TasaPct() float64 { return r.TasaExito * 100 }

// SegmentStats breaks the run down by ML segment.
type SegmentStats struct {
	Segmento  string  `json:"segmento"`
	Llamadas  int     `json:"llamadas"`
	Exitosas  int     `json:"exitosas"`
	TasaExito float64 `json:"tasa_exito"`
	Monto     float64 `json:"monto"`
}

func (s SegmentStats) TasaPct() float64 { return s.TasaExito * 100 }

// Build folds ledger rows into a Report and its HTML rendering. Re-finalized
// call ids are deduplicated last-row-wins before aggregation.
func Build(recs []ledger.Record, generadoEn time.Time) (Report, []byte, error) {
	recs = lastPerCall(recs)

	r := Report{
		Schema:        ReportSchema,
		GeneradoEn:    generadoEn,
		TotalLlamadas: len(recs),
	}

	segments := make(map[string]*SegmentStats)
	var totalDur float64
	for _, rec := range recs {
		totalDur += rec.DuracionSeg

		seg, ok := segments[rec.Segmento]
		if !ok {
			seg = &SegmentStats{Segmento: rec.Segmento}
			segments[rec.Segmento] = seg
		}
		seg.Llamadas++

		switch rec.Resultado {
		case types.ResolucionExitosa:
			r.Exitosas++
			r.MontoRecuperado += rec.Monto
			seg.Exitosas++
			seg.Monto += rec.Monto
		case types.ResolucionSinContestar:
			r.SinContestar++
		case types.ResolucionTimeout:
			r.Timeouts++
		case types.ResolucionError:
			r.Errores++
		default:
			r.SinAcuerdo++
		}
	}

	if r.TotalLlamadas > 0 {
		r.TasaExito = float64(r.Exitosas) / float64(r.TotalLlamadas)
		r.DuracionMedia = totalDur / float64(r.TotalLlamadas)
	}

	for _, seg := range segments {
		if seg.Llamadas > 0 {
			seg.TasaExito = float64(seg.Exitosas) / float64(seg.Llamadas)
		}
		r.PorSegmento = append(r.PorSegmento, *seg)
	}
	sort.Slice(r.PorSegmento, func(i, j int) bool {
		return r.PorSegmento[i].Segmento < r.PorSegmento[j].Segmento
	})

	htmlBytes, err := renderHTML(r)
	if err != nil {
		return Report{}, nil, err
	}
	return r, htmlBytes, nil
}

// lastPerCall keeps the last row per call id, preserving row order for the
// survivors.
func lastPerCall(recs []ledger.Record) []ledger.Record {
	last := make(map[string]int, len(recs))
	for i, rec := range recs {
		last[rec.CallID] = i
	}
	out := make([]ledger.Record, 0, len(last))
	for i, rec := range recs {
		if last[rec.CallID] == i {
			out = append(out, rec)
		}
	}
	return out
}

var reportHTMLTmpl = template.Must(template.New("report").Parse(`<!doctype html>
<html lang="es">
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>Reporte de campaña</title>
  <style>
    body{font-family:ui-sans-serif,system-ui,-apple-system,Segoe UI,Roboto,Helvetica,Arial; margin:24px; color:#0f172a}
    .card{max-width:920px; border:1px solid #e2e8f0; border-radius:12px; padding:18px 18px; box-shadow:0 1px 2px rgba(0,0,0,.04)}
    .row{display:flex; flex-wrap:wrap; gap:12px}
    .pill{display:inline-block; padding:4px 10px; border-radius:999px; font-size:12px; background:#f1f5f9}
    table{border-collapse:collapse; margin-top:14px; font-size:13px}
    th,td{border-bottom:1px dashed #e2e8f0; padding:6px 14px 6px 0; text-align:left}
    th{font-size:12px; color:#475569}
  </style>
</head>
<body>
  <div class="card">
    <div class="row" style="margin:0 0 12px 0">
      <span class="pill">Llamadas: {{.TotalLlamadas}}</span>
      <span class="pill">Exitosas: {{.Exitosas}}</span>
      <span class="pill">Tasa: {{printf "%.1f" .TasaPct}}%</span>
      <span class="pill">Recuperado: ${{printf "%.0f" .MontoRecuperado}}</span>
    </div>
    <table>
      <tr><th>Segmento</th><th>Llamadas</th><th>Exitosas</th><th>Tasa</th><th>Monto</th></tr>
      {{range .PorSegmento}}
      <tr>
        <td>{{.Segmento}}</td>
        <td>{{.Llamadas}}</td>
        <td>{{.Exitosas}}</td>
        <td>{{printf "%.1f" .TasaPct}}%</td>
        <td>${{printf "%.0f" .Monto}}</td>
      </tr>
      {{end}}
    </table>
  </div>
</body>
</html>`))

func renderHTML(r Report) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := reportHTMLTmpl.Execute(buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
