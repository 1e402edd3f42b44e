package neo4j

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bbowles1/HIPPO/internal/infrastructure/monitoring/logging"
	apperrors "github.com/bbowles1/HIPPO/pkg/errors"
)

type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) VerifyConnectivity(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) internalSession {
	return m.Called(ctx, config).Get(0).(internalSession)
}

func (m *MockDriver) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockSession runs the work against tx.
type MockSession struct {
	mock.Mock
	tx Transaction
}

func (m *MockSession) ExecuteRead(ctx context.Context, work TransactionWork) (any, error) {
	return work(m.tx)
}

func (m *MockSession) ExecuteWrite(ctx context.Context, work TransactionWork) (any, error) {
	return work(m.tx)
}

func (m *MockSession) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type stubTransaction struct {
	result Result
	err    error
	cypher []string
}

func (t *stubTransaction) Run(_ context.Context, cypher string, _ map[string]any) (Result, error) {
	t.cypher = append(t.cypher, cypher)
	return t.result, t.err
}

type stubResult struct {
	records []*neo4j.Record
	pos     int
	err     error
}

func (r *stubResult) Next(context.Context) bool {
	if r.pos < len(r.records) {
		r.pos++
		return true
	}
	return false
}

func (r *stubResult) Record() *neo4j.Record { return r.records[r.pos-1] }
func (r *stubResult) Err() error            { return r.err }
func (r *stubResult) Consume(context.Context) (neo4j.ResultSummary, error) {
	return nil, nil
}

func newTestDriver(tx Transaction) (*Driver, *MockDriver, *MockSession) {
	md := new(MockDriver)
	ms := &MockSession{tx: tx}
	d := &Driver{driver: md, logger: logging.NewNopLogger()}
	return d, md, ms
}

func TestDriver_HealthCheck(t *testing.T) {
	tx := &stubTransaction{result: &stubResult{records: []*neo4j.Record{{Keys: []string{"health"}, Values: []any{int64(1)}}}}}
	d, md, ms := newTestDriver(tx)

	md.On("VerifyConnectivity", mock.Anything).Return(nil)
	md.On("NewSession", mock.Anything, neo4j.SessionConfig{DatabaseName: "neo4j", AccessMode: neo4j.AccessModeRead}).Return(ms)
	ms.On("Close", mock.Anything).Return(nil)

	require.NoError(t, d.HealthCheck(context.Background()))
	assert.Equal(t, []string{"RETURN 1 AS health"}, tx.cypher)
	md.AssertExpectations(t)
	ms.AssertExpectations(t)
}

func TestDriver_HealthCheck_Unreachable(t *testing.T) {
	d, md, _ := newTestDriver(nil)
	md.On("VerifyConnectivity", mock.Anything).Return(errors.New("dial tcp: refused"))

	err := d.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDatabaseError, apperrors.GetCode(err))
}

func TestDriver_ExecuteWrite_WrapsError(t *testing.T) {
	tx := &stubTransaction{err: errors.New("constraint violated")}
	d, md, ms := newTestDriver(tx)
	d.database = "hpo"

	md.On("NewSession", mock.Anything, neo4j.SessionConfig{DatabaseName: "hpo", AccessMode: neo4j.AccessModeWrite}).Return(ms)
	ms.On("Close", mock.Anything).Return(nil)

	_, err := d.ExecuteWrite(context.Background(), func(tx Transaction) (any, error) {
		return tx.Run(context.Background(), "CREATE (n)", nil)
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatabaseError))
	ms.AssertExpectations(t)
}

func TestDriver_CloseOnce(t *testing.T) {
	d, md, _ := newTestDriver(nil)
	md.On("Close", mock.Anything).Return(nil).Once()

	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))
	md.AssertNumberOfCalls(t, "Close", 1)
}

func TestCollectRecords(t *testing.T) {
	res := &stubResult{records: []*neo4j.Record{
		{Keys: []string{"id"}, Values: []any{"HP:1"}},
		{Keys: []string{"id"}, Values: []any{"HP:2"}},
	}}
	ids, err := CollectRecords(context.Background(), res, func(r *neo4j.Record) (string, error) {
		return r.Values[0].(string), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"HP:1", "HP:2"}, ids)
}

func TestExtractSingleRecord_NotFound(t *testing.T) {
	_, err := ExtractSingleRecord(context.Background(), &stubResult{}, func(r *neo4j.Record) (int, error) { return 0, nil })
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
}
