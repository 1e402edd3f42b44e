// Package table reads case annotation tables and writes similarity matrices
// as delimited text.
package table

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/bbowles1/HIPPO/internal/domain/cohort"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

// ReaderOptions selects the delimiter and the two columns of interest.
type ReaderOptions struct {
	Delimiter     rune
	IDColumn      string
	ConceptColumn string
}

func (o ReaderOptions) withDefaults() ReaderOptions {
	if o.Delimiter == 0 {
		o.Delimiter = '\t'
	}
	if o.IDColumn == "" {
		o.IDColumn = "ID"
	}
	if o.ConceptColumn == "" {
		o.ConceptColumn = "HPO"
	}
	return o
}

// ReadFile opens path and reads it with ReadRows.
func ReadFile(path string, opts ReaderOptions) ([]cohort.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInputUnreadable, "cannot open input table").WithDetail(path)
	}
	defer f.Close()

	rows, err := ReadRows(f, opts)
	if err != nil {
		return nil, errors.WrapMsg(err, "cannot read input table").WithDetail(path)
	}
	return rows, nil
}

// ReadRows parses a header line followed by records.  Extra columns are
// ignored; records shorter than the header are padded with empty fields so
// that the loader can drop them as incomplete.
func ReadRows(r io.Reader, opts ReaderOptions) ([]cohort.Row, error) {
	opts = opts.withDefaults()

	cr := csv.NewReader(r)
	cr.Comma = opts.Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New(errors.ErrCodeInputUnreadable, "input table is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInputMalformedRow, "cannot parse header")
	}

	idIdx, conceptIdx := -1, -1
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch name {
		case opts.IDColumn:
			idIdx = i
		case opts.ConceptColumn:
			conceptIdx = i
		}
	}
	if idIdx < 0 {
		return nil, errors.Newf(errors.ErrCodeInputMissingColumn, "column %q not found in header", opts.IDColumn)
	}
	if conceptIdx < 0 {
		return nil, errors.Newf(errors.ErrCodeInputMissingColumn, "column %q not found in header", opts.ConceptColumn)
	}

	var rows []cohort.Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInputMalformedRow, "cannot parse record")
		}
		line, _ := cr.FieldPos(0)
		rows = append(rows, cohort.Row{
			CaseID:   field(rec, idIdx),
			Concepts: field(rec, conceptIdx),
			Line:     line,
		})
	}
	return rows, nil
}

func field(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}
