package axisdata

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatchPerSourceRunsEveryUnit(t *testing.T) {
	var count int64
	err := dispatchPerSource(10, func(i int) error {
		atomic.AddInt64(&count, 1)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(10), count)
}

func TestDispatchPerSourcePropagatesFirstError(t *testing.T) {
	err := dispatchPerSource(5, func(i int) error {
		if i == 3 {
			return fmt.Errorf("boom at %d", i)
		}
		return nil
	})
	require.Error(t, err)
}

func TestDispatchPerSourceZero(t *testing.T) {
	require.NoError(t, dispatchPerSource(0, func(i int) error {
		t.Fatal("must not be called")
		return nil
	}))
}
