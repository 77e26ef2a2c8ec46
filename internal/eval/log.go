package eval

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/dgallion1/citewise/internal/domain"
)

// LogHeader is the column layout of an evaluation log.
var LogHeader = []string{"query_id", "expected_source", "expected_pages", "hit_at_k", "coverage", "retrieved_sources"}

// Row is one line of an evaluation log.
type Row struct {
	QueryID          string   `json:"query_id"`
	ExpectedSource   string   `json:"expected_source"`
	ExpectedPages    []int    `json:"expected_pages"`
	HitAtK           bool     `json:"hit_at_k"`
	Coverage         float64  `json:"coverage"`
	RetrievedSources []string `json:"retrieved_sources"`
}

// Rows flattens records into log rows.
func Rows(records []domain.EvalRecord) []Row {
	rows := make([]Row, len(records))
	for i, r := range records {
		rows[i] = Row{
			QueryID:          r.QueryID,
			ExpectedSource:   r.ExpectedSource,
			ExpectedPages:    slices.Clone(r.ExpectedPages),
			HitAtK:           r.HitAtK,
			Coverage:         r.Coverage,
			RetrievedSources: sourcesOf(r.Retrieved),
		}
	}
	return rows
}

// WriteLog writes rows as CSV with LogHeader. Lists are joined with ";" and
// coverage uses the shortest representation that parses back exactly.
func WriteLog(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LogHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, r := range rows {
		pages := make([]string, len(r.ExpectedPages))
		for i, p := range r.ExpectedPages {
			pages[i] = strconv.Itoa(p)
		}
		record := []string{
			r.QueryID,
			r.ExpectedSource,
			strings.Join(pages, ";"),
			strconv.FormatBool(r.HitAtK),
			strconv.FormatFloat(r.Coverage, 'g', -1, 64),
			strings.Join(r.RetrievedSources, ";"),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing row %s: %w", r.QueryID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadLog parses a log written by WriteLog.
func ReadLog(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(LogHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if !slices.Equal(header, LogHeader) {
		return nil, fmt.Errorf("unexpected log header %v", header)
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		row, err := parseRow(rec)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(rec []string) (Row, error) {
	row := Row{QueryID: rec[0], ExpectedSource: rec[1]}

	for _, s := range splitList(rec[2]) {
		p, err := strconv.Atoi(s)
		if err != nil {
			return Row{}, fmt.Errorf("row %s: bad page %q: %w", row.QueryID, s, err)
		}
		row.ExpectedPages = append(row.ExpectedPages, p)
	}

	hit, err := strconv.ParseBool(rec[3])
	if err != nil {
		return Row{}, fmt.Errorf("row %s: bad hit_at_k %q: %w", row.QueryID, rec[3], err)
	}
	row.HitAtK = hit

	cov, err := strconv.ParseFloat(rec[4], 64)
	if err != nil {
		return Row{}, fmt.Errorf("row %s: bad coverage %q: %w", row.QueryID, rec[4], err)
	}
	row.Coverage = cov

	row.RetrievedSources = splitList(rec[5])
	return row, nil
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ";")
}
