package collector

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/harperdean/rocklens/internal/diag"
)

type fakeSource struct {
	records    []diag.SlowQueryRecord
	queryErr   error
	explainErr error
	gotOpts    Options
	explained  []string
}

func (f *fakeSource) Name() string               { return "fake" }
func (f *fakeSource) Ping(context.Context) error { return nil }
func (f *fakeSource) Close() error               { return nil }

func (f *fakeSource) SlowQueries(_ context.Context, opts Options) ([]diag.SlowQueryRecord, error) {
	f.gotOpts = opts
	return f.records, f.queryErr
}

func (f *fakeSource) Explain(_ context.Context, _ string, sql string) (string, error) {
	if f.explainErr != nil {
		return "", f.explainErr
	}
	f.explained = append(f.explained, sql)
	return "0:OlapScanNode\n   TABLE: t\n", nil
}

func TestCollect_AppliesDefaultLimit(t *testing.T) {
	src := &fakeSource{}
	_, err := New(src, nil).Collect(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, DefaultLimit, src.gotOpts.Limit)
}

func TestCollect_PropagatesQueryError(t *testing.T) {
	src := &fakeSource{queryErr: errors.New("connection refused")}
	_, err := New(src, nil).Collect(context.Background(), Options{})
	require.Error(t, err)
}

func TestCollect_PatternFilter(t *testing.T) {
	src := &fakeSource{records: []diag.SlowQueryRecord{
		{SQLText: "SELECT * FROM orders"},
		{SQLText: "SELECT * FROM customers"},
	}}

	records, err := New(src, nil).Collect(context.Background(), Options{Pattern: "ORDERS"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Contains(t, records[0].SQLText, "orders")
}

func TestCollect_AttachesPlans(t *testing.T) {
	src := &fakeSource{records: []diag.SlowQueryRecord{
		{SQLText: "SELECT * FROM orders"},
		{SQLText: "SELECT * FROM customers"},
	}}

	records, err := New(src, nil).Collect(context.Background(), Options{WithPlans: true})
	require.NoError(t, err)
	require.Len(t, src.explained, 2)
	for _, rec := range records {
		require.NotEmpty(t, rec.PlanText)
	}
}

func TestCollect_ExplainFailureLeavesRecord(t *testing.T) {
	src := &fakeSource{
		records:    []diag.SlowQueryRecord{{SQLText: "SELECT * FROM orders"}},
		explainErr: errors.New("EXPLAIN not permitted"),
	}

	records, err := New(src, nil).Collect(context.Background(), Options{WithPlans: true})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Empty(t, records[0].PlanText)
}

func TestFilterByPattern_CaseInsensitive(t *testing.T) {
	records := []diag.SlowQueryRecord{
		{SQLText: "SELECT * FROM Orders"},
		{SQLText: "select * from payments"},
	}

	require.Len(t, FilterByPattern(records, "orders"), 1)
	require.Len(t, FilterByPattern(records, "PAYMENTS"), 1)
	require.Empty(t, FilterByPattern(records, "users"))
}
