package batch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carloz138/catalogo-magico-mx-sub005/batch"
	apperrors "github.com/carloz138/catalogo-magico-mx-sub005/common/errors"
	"github.com/carloz138/catalogo-magico-mx-sub005/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func records(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func noSleep() batch.Option {
	return batch.WithRetry(retry.WithSleep(func(context.Context, time.Duration) error { return nil }))
}

func TestWriteAllIsolatesFailedBatch(t *testing.T) {
	errBatch := errors.New("validation rejected by store")
	var sizes []int

	res := batch.WriteAll(context.Background(), records(1234), 500, func(_ context.Context, b []int) ([]int, error) {
		sizes = append(sizes, len(b))
		if b[0] == 500 {
			return nil, errBatch
		}
		return b, nil
	})

	assert.Equal(t, []int{500, 500, 234}, sizes)
	assert.Len(t, res.Successful, 734)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 1, res.Failed[0].BatchIndex)
	assert.Same(t, errBatch, res.Failed[0].Err)
	assert.Equal(t, 499, res.Successful[499])
	assert.Equal(t, 1000, res.Successful[500])
	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, errBatch.Error(), res.Outcomes[1].Error)

	var persistErr *apperrors.BatchPersistError
	require.ErrorAs(t, res.Err(), &persistErr)
	assert.Equal(t, 1, persistErr.BatchIndex)
}

func TestWriteAllDefaultSize(t *testing.T) {
	var sizes []int
	res := batch.WriteAll(context.Background(), records(1001), 0, func(_ context.Context, b []int) ([]int, error) {
		sizes = append(sizes, len(b))
		return b, nil
	})

	assert.Equal(t, []int{500, 500, 1}, sizes)
	assert.NoError(t, res.Err())
}

func TestWriteAllProgressUpdates(t *testing.T) {
	var updates []batch.Update
	var started []int

	batch.WriteAll(context.Background(), records(25), 10, func(_ context.Context, b []int) ([]int, error) {
		if b[0] == 10 {
			return nil, errors.New("conditional check failed")
		}
		return b, nil
	},
		batch.OnBatchStart(func(i, _ int) { started = append(started, i) }),
		batch.OnBatch(func(u batch.Update) { updates = append(updates, u) }),
	)

	assert.Equal(t, []int{0, 1, 2}, started)
	require.Len(t, updates, 3)
	assert.Equal(t, batch.Update{BatchIndex: 0, Batches: 3, Size: 10, Succeeded: 10}, updates[0])
	assert.Equal(t, 10, updates[1].Failed)
	assert.Error(t, updates[1].Err)
	assert.Equal(t, 15, updates[2].Succeeded)
	assert.Equal(t, 10, updates[2].Failed)
}

func TestWriteAllRetriesTransientFailures(t *testing.T) {
	calls := 0
	var flags []bool

	res := batch.WriteAll(context.Background(), records(5), 5, func(_ context.Context, b []int) ([]int, error) {
		calls++
		if calls == 1 {
			return nil, &apperrors.StatusError{Status: 503}
		}
		return b, nil
	}, noSleep(), batch.OnRetrying(func(r bool) { flags = append(flags, r) }))

	assert.Equal(t, 2, calls)
	assert.Len(t, res.Successful, 5)
	assert.Empty(t, res.Failed)
	assert.Equal(t, []bool{true, false}, flags)
}

func TestWriteAllStopsBetweenBatchesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var seenCtxErr error

	res := batch.WriteAll(ctx, records(30), 10, func(pctx context.Context, b []int) ([]int, error) {
		if b[0] == 10 {
			cancel()
			seenCtxErr = pctx.Err()
		}
		return b, nil
	})

	assert.NoError(t, seenCtxErr)
	assert.True(t, res.Cancelled)
	assert.Len(t, res.Successful, 20)
	assert.Equal(t, 10, res.Skipped)
	assert.Len(t, res.Outcomes, 2)
}

func TestWriteAllCancelHook(t *testing.T) {
	stop := false
	res := batch.WriteAll(context.Background(), records(30), 10, func(_ context.Context, b []int) ([]int, error) {
		stop = true
		return b, nil
	}, batch.WithCancel(func() bool { return stop }))

	assert.True(t, res.Cancelled)
	assert.Len(t, res.Successful, 10)
	assert.Equal(t, 20, res.Skipped)
}

func TestWriteAllResubmitFailed(t *testing.T) {
	attempts := map[int]int{}
	var recovered []batch.Update

	res := batch.WriteAll(context.Background(), records(30), 10, func(_ context.Context, b []int) ([]int, error) {
		attempts[b[0]]++
		if b[0] == 10 && attempts[b[0]] == 1 {
			return nil, errors.New("item collection too large")
		}
		return b, nil
	},
		batch.WithResubmitFailed(true),
		batch.OnBatch(func(u batch.Update) {
			if u.Resubmitted {
				recovered = append(recovered, u)
			}
		}),
	)

	assert.Empty(t, res.Failed)
	assert.Len(t, res.Successful, 30)
	assert.Equal(t, 10, res.Successful[20])
	assert.Equal(t, 19, res.Successful[29])
	require.Len(t, recovered, 1)
	assert.NoError(t, recovered[0].Err)
	assert.Equal(t, 30, recovered[0].Succeeded)
	assert.Equal(t, 0, recovered[0].Failed)
	assert.Empty(t, res.Outcomes[1].Error)
}

func TestPartition(t *testing.T) {
	parts := batch.Partition(records(7), 3)

	assert.Equal(t, [][]int{{0, 1, 2}, {3, 4, 5}, {6}}, parts)
	assert.Empty(t, batch.Partition([]int{}, 3))
}
