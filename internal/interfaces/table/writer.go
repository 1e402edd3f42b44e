package table

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bbowles1/HIPPO/internal/domain/similarity"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

// Column label styles.
const (
	LabelsIDs        = "ids"
	LabelsPositional = "positional"
)

// WriterOptions controls the matrix layout.
type WriterOptions struct {
	Delimiter rune
	// ColumnLabels is LabelsIDs (default) or LabelsPositional, which numbers
	// columns 0..N-1.
	ColumnLabels string
	// Precision is the number of decimals; 0 writes the shortest
	// representation that round-trips.
	Precision int
	// IDHeader names the first column, "ID" by default.
	IDHeader string
}

// WriteMatrix writes m with a header row followed by one row per case.
// Undefined entries are written as NA; callers normally drop them first.
func WriteMatrix(w io.Writer, m *similarity.Matrix, opts WriterOptions) error {
	if opts.Delimiter == 0 {
		opts.Delimiter = '\t'
	}
	if opts.IDHeader == "" {
		opts.IDHeader = "ID"
	}
	delim := string(opts.Delimiter)

	bw := bufio.NewWriter(w)
	ids := m.IDs()

	bw.WriteString(opts.IDHeader)
	for i, id := range ids {
		bw.WriteString(delim)
		if opts.ColumnLabels == LabelsPositional {
			bw.WriteString(strconv.Itoa(i))
		} else {
			bw.WriteString(id)
		}
	}
	bw.WriteByte('\n')

	for i, id := range ids {
		bw.WriteString(id)
		for j := range ids {
			bw.WriteString(delim)
			bw.WriteString(formatScore(m.At(i, j), opts.Precision))
		}
		if err := bw.WriteByte('\n'); err != nil {
			return errors.Wrap(err, errors.ErrCodeOutputWriteFailed, "cannot write matrix row").WithDetail(id)
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrCodeOutputWriteFailed, "cannot flush matrix")
	}
	return nil
}

// WriteMatrixFile writes m to a temporary file next to path and renames it
// into place once complete.
func WriteMatrixFile(path string, m *similarity.Matrix, opts WriterOptions) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeOutputWriteFailed, "cannot create output file").WithDetail(path)
	}
	defer os.Remove(tmp.Name())

	if err := WriteMatrix(tmp, m, opts); err != nil {
		tmp.Close()
		return errors.WrapMsg(err, "cannot write output file").WithDetail(path)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrCodeOutputWriteFailed, "cannot set output file mode").WithDetail(path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeOutputWriteFailed, "cannot close output file").WithDetail(path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, errors.ErrCodeOutputWriteFailed, "cannot move output file into place").WithDetail(path)
	}
	return nil
}

func formatScore(s similarity.Score, precision int) string {
	if !s.Defined {
		return "NA"
	}
	if precision <= 0 {
		return strconv.FormatFloat(s.Value, 'g', -1, 64)
	}
	return strconv.FormatFloat(s.Value, 'f', precision, 64)
}
