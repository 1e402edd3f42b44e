package table

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbowles1/HIPPO/internal/domain/cohort"
	"github.com/bbowles1/HIPPO/internal/domain/similarity"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

func TestReadRows(t *testing.T) {
	input := "Sex\tID\tHPO\n" +
		"F\tcase1\tHP:0000707,HP:0001250\n" +
		"M\tcase2\t\n" +
		"M\tcase3\n"

	rows, err := ReadRows(strings.NewReader(input), ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, []cohort.Row{
		{CaseID: "case1", Concepts: "HP:0000707,HP:0001250", Line: 2},
		{CaseID: "case2", Concepts: "", Line: 3},
		{CaseID: "case3", Concepts: "", Line: 4},
	}, rows)
}

func TestReadRows_CustomColumnsAndDelimiter(t *testing.T) {
	input := "\ufeffpatient;terms\np1;HP:1|HP:2\n"
	rows, err := ReadRows(strings.NewReader(input), ReaderOptions{Delimiter: ';', IDColumn: "patient", ConceptColumn: "terms"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "p1", rows[0].CaseID)
	assert.Equal(t, "HP:1|HP:2", rows[0].Concepts)
}

func TestReadRows_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  errors.ErrorCode
	}{
		{"empty", "", errors.ErrCodeInputUnreadable},
		{"missing id", "HPO\nHP:1\n", errors.ErrCodeInputMissingColumn},
		{"missing concepts", "ID\nc1\n", errors.ErrCodeInputMissingColumn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadRows(strings.NewReader(tt.input), ReaderOptions{})
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.code), err.Error())
		})
	}
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.tsv"), ReaderOptions{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInputUnreadable, errors.GetCode(err))
}

func testMatrix(t *testing.T) *similarity.Matrix {
	t.Helper()
	m, err := similarity.NewMatrix([]string{"a", "b", "c"}, [][]similarity.Score{
		{similarity.Defined(1.5), similarity.Defined(0.25)},
		{similarity.Defined(2.0 / 3.0)},
		{},
	})
	require.NoError(t, err)
	return m
}

func TestWriteMatrix_IDLabels(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMatrix(&buf, testMatrix(t), WriterOptions{Precision: 3}))
	assert.Equal(t,
		"ID\ta\tb\tc\n"+
			"a\t0.000\t1.500\t0.250\n"+
			"b\t1.500\t0.000\t0.667\n"+
			"c\t0.250\t0.667\t0.000\n",
		buf.String())
}

func TestWriteMatrix_PositionalShortest(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMatrix(&buf, testMatrix(t), WriterOptions{ColumnLabels: LabelsPositional, Delimiter: ','}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ID,0,1,2", lines[0])
	assert.Equal(t, "a,0,1.5,0.25", lines[1])
}

func TestWriteMatrix_Undefined(t *testing.T) {
	m, err := similarity.NewMatrix([]string{"a", "b"}, [][]similarity.Score{{similarity.Undefined}, {}})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WriteMatrix(&buf, m, WriterOptions{}))
	assert.Contains(t, buf.String(), "a\t0\tNA\n")
}

func TestWriteMatrixFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.tsv")
	require.NoError(t, WriteMatrixFile(path, testMatrix(t), WriterOptions{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "ID\ta\tb\tc\n"))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteMatrixFile_BadDirectory(t *testing.T) {
	err := WriteMatrixFile(filepath.Join(t.TempDir(), "missing", "out.tsv"), testMatrix(t), WriterOptions{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeOutputWriteFailed, errors.GetCode(err))
}
