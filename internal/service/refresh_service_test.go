package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-gateway/internal/database/drivers"
	"insight-gateway/internal/model"
	"insight-gateway/internal/utils"
)

// stubSource serves fixed tables. When block is set FetchTables waits for it.
type stubSource struct {
	*drivers.SourceBase
	tables  map[model.TableKind]*model.RawTable
	err     error
	block   chan struct{}
	started chan struct{}
	fetches atomic.Int32
}

func newStubSource(tables map[model.TableKind]*model.RawTable) *stubSource {
	return &stubSource{
		SourceBase: drivers.NewSourceBase("stub", drivers.CategoryFileSystem),
		tables:     tables,
	}
}

func (s *stubSource) FetchTables(ctx context.Context) (map[model.TableKind]*model.RawTable, error) {
	s.fetches.Add(1)
	if s.block != nil {
		if s.started != nil {
			close(s.started)
		}
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.tables, s.err
}

func (s *stubSource) TestConnection(ctx context.Context) error {
	return s.err
}

func TestReloadPublishesFromSource(t *testing.T) {
	svc := newTestService(t, DefaultRetrievalOptions())
	refresher := NewRefreshService(svc, newStubSource(sampleTables()), nil)

	result, err := refresher.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, uint64(1), svc.Generation())
	assert.False(t, refresher.Running())
	assert.Equal(t, "stub", refresher.Source().GetSourceTypeName())
}

func TestReloadWrapsSourceFailures(t *testing.T) {
	svc := newTestService(t, DefaultRetrievalOptions())

	failing := newStubSource(nil)
	failing.err = errors.New("bucket not found")
	_, err := NewRefreshService(svc, failing, nil).Reload(context.Background())
	assert.True(t, errors.Is(err, utils.ErrSourceUnavailable))
	assert.Contains(t, err.Error(), "bucket not found")

	empty := newStubSource(map[model.TableKind]*model.RawTable{})
	_, err = NewRefreshService(svc, empty, nil).Reload(context.Background())
	assert.True(t, errors.Is(err, utils.ErrSourceUnavailable))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked := newStubSource(sampleTables())
	blocked.block = make(chan struct{})
	_, err = NewRefreshService(svc, blocked, nil).Reload(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, uint64(0), svc.Generation())
}

func TestReloadReturnsRejection(t *testing.T) {
	svc := newTestService(t, DefaultRetrievalOptions())
	orders := append(orderRecords(), []string{"O6", "C9", "P1", "2024-04-01", "pending", "1", "9.99"})
	refresher := NewRefreshService(svc, newStubSource(rawTables(customerRecords(), productRecords(), orders)), nil)

	result, err := refresher.Reload(context.Background())
	require.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Accepted)
	assert.True(t, errors.Is(err, utils.ErrDanglingReference))
	assert.Equal(t, uint64(0), svc.Generation())
}

func TestConcurrentReloadIsRejected(t *testing.T) {
	svc := newTestService(t, DefaultRetrievalOptions())
	source := newStubSource(sampleTables())
	source.block = make(chan struct{})
	source.started = make(chan struct{})
	refresher := NewRefreshService(svc, source, nil)

	done := make(chan error, 1)
	go func() {
		_, err := refresher.Reload(context.Background())
		done <- err
	}()

	select {
	case <-source.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first reload did not start")
	}
	assert.True(t, refresher.Running())

	_, err := refresher.Reload(context.Background())
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeRefreshInProgress))

	close(source.block)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), source.fetches.Load())
	assert.Equal(t, uint64(1), svc.Generation())
}
