package logging

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

func newTestLogger(t *testing.T, level zapcore.Level) (Logger, *zaptest.Buffer) {
	t.Helper()
	buf := &zaptest.Buffer{}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), buf, level)
	return NewLoggerFromCore(core), buf
}

func decodeLines(t *testing.T, buf *zaptest.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range buf.Lines() {
		m := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "console", "JSON", ""} {
		l, err := NewLogger(LogConfig{Level: "debug", Format: format})
		require.NoError(t, err, format)
		assert.NotNil(t, l)
	}
}

func TestNewLogger_BadOutputPath(t *testing.T) {
	l, err := NewLogger(LogConfig{OutputPaths: []string{"/nonexistent-dir/for/sure/log.txt"}})
	assert.Error(t, err)
	assert.Nil(t, l)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel(""))
}

func TestLogger_FieldsAreEncoded(t *testing.T) {
	l, buf := newTestLogger(t, zapcore.DebugLevel)

	l.Info("matrix built",
		String("input", "cases.tsv"),
		Int("cases", 3),
		Int64("pairs", 3),
		Float64("unmapped_pct", 12.5),
		Bool("dropped", false),
		Duration("elapsed", 2*time.Second),
		Strings("ids", []string{"a", "b"}),
		Err(errors.New("boom")),
		Any("meta", map[string]int{"x": 1}),
	)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	e := lines[0]
	assert.Equal(t, "matrix built", e["msg"])
	assert.Equal(t, "cases.tsv", e["input"])
	assert.Equal(t, float64(3), e["cases"])
	assert.Equal(t, 12.5, e["unmapped_pct"])
	assert.Equal(t, false, e["dropped"])
	assert.Equal(t, "boom", e["error"])
	assert.Equal(t, []interface{}{"a", "b"}, e["ids"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	l, buf := newTestLogger(t, zapcore.WarnLevel)
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "error", lines[1]["level"])
}

func TestLogger_WithAndNamed(t *testing.T) {
	l, buf := newTestLogger(t, zapcore.DebugLevel)
	child := l.Named("matrix").With(String("run_id", "r1"))
	child.Info("progress")
	l.Info("parent")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "r1", lines[0]["run_id"])
	assert.Equal(t, "matrix", lines[0]["logger"])
	_, has := lines[1]["run_id"]
	assert.False(t, has, "parent must not inherit child fields")
}

func TestErr_Nil(t *testing.T) {
	f := Err(nil)
	assert.Equal(t, "error", f.Key)
	assert.Equal(t, "<nil>", f.Value)
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
	assert.NotNil(t, l.With(String("a", "b")))
	assert.NotNil(t, l.Named("n"))
	assert.NoError(t, l.Sync())
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l, _ := newTestLogger(t, zapcore.InfoLevel)
	assert.Same(t, l, OrNop(l))
}

func TestDefault_SetAndGet(t *testing.T) {
	orig := Default()
	t.Cleanup(func() { SetDefault(orig) })

	l, buf := newTestLogger(t, zapcore.InfoLevel)
	SetDefault(nil)
	assert.Equal(t, orig, Default())

	SetDefault(l)
	Default().Info("hello")
	assert.True(t, strings.Contains(buf.String(), "hello"))
}
