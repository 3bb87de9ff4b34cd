package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/juanpgarcia/cobrabot/pkg/types"
)

var header = []string{
	"fecha", "call_id", "cedula", "nombre", "celular", "producto",
	"dias_mora", "saldo_mora", "probabilidad", "segmento",
	"resultado", "monto_acordado", "duracion_seg",
}

// CSVStore appends records to a CSV file opened O_APPEND, so rows written by
// earlier runs survive restarts. A mutex serializes writers within the
// process.
type CSVStore struct {
	mu   sync.Mutex
	f    *os.File
	w    *csv.Writer
	path string
}

// OpenCSV opens (or creates) the ledger file at path. The header row is
// written only when the file is new.
func OpenCSV(path string) (*CSVStore, error) {
	info, statErr := os.Stat(path)
	fresh := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	s := &CSVStore{f: f, w: csv.NewWriter(f), path: path}
	if fresh {
		if err := s.w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("ledger: write header: %w", err)
		}
		s.w.Flush()
		if err := s.w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("ledger: write header: %w", err)
		}
	}
	return s, nil
}

// Append writes one row and flushes it to disk.
func (s *CSVStore) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fmt.Errorf("ledger: store closed")
	}
	row := []string{
		rec.Fecha.Format(time.RFC3339),
		rec.CallID,
		rec.Cedula,
		rec.Nombre,
		rec.Celular,
		rec.Producto,
		strconv.Itoa(rec.DiasMora),
		strconv.FormatFloat(rec.SaldoMora, 'f', 2, 64),
		strconv.FormatFloat(rec.Probabilidad, 'f', 4, 64),
		rec.Segmento,
		string(rec.Resultado),
		strconv.FormatFloat(rec.Monto, 'f', 2, 64),
		strconv.FormatFloat(rec.DuracionSeg, 'f', 1, 64),
	}
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("ledger: append: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("ledger: append: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *CSVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	s.w.Flush()
	err := s.w.Error()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	s.f = nil
	return err
}

// ReadAll parses a ledger file back into records, mainly for reporting and
// tests.
func ReadAll(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ledger: read %s: %w", path, err)
	}
	var recs []Record
	for i, row := range rows {
		if i == 0 || len(row) < len(header) {
			continue
		}
		fecha, _ := time.Parse(time.RFC3339, row[0])
		diasMora, _ := strconv.Atoi(row[6])
		saldo, _ := strconv.ParseFloat(row[7], 64)
		prob, _ := strconv.ParseFloat(row[8], 64)
		monto, _ := strconv.ParseFloat(row[11], 64)
		dur, _ := strconv.ParseFloat(row[12], 64)
		recs = append(recs, Record{
			Fecha:        fecha,
			CallID:       row[1],
			Cedula:       row[2],
			Nombre:       row[3],
			Celular:      row[4],
			Producto:     row[5],
			DiasMora:     diasMora,
			SaldoMora:    saldo,
			Probabilidad: prob,
			Segmento:     row[9],
			Resultado:    types.Resolution(row[10]),
			Monto:        monto,
			DuracionSeg:  dur,
		})
	}
	return recs, nil
}
