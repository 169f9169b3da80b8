package axisdata

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDataLockReentrantByOwner(t *testing.T) {
	l := NewDataLock()
	tok := NewLockToken()
	l.Lock(tok)
	l.Lock(tok) // re-enter as a no-op
	require.True(t, l.HasWriteLock(tok))
	l.Unlock(tok)
	require.True(t, l.HasWriteLock(tok), "first Unlock only drops one level of reentrancy")
	l.Unlock(tok)
	require.False(t, l.HasWriteLock(tok))
}

func TestDataLockMultipleReaders(t *testing.T) {
	l := NewDataLock()
	a, b := NewLockToken(), NewLockToken()
	l.RLock(a)
	l.RLock(b)
	require.True(t, l.HasReadLock(a))
	require.True(t, l.HasReadLock(b))
	l.RUnlock(a)
	require.True(t, l.HasReadLock(b))
	l.RUnlock(b)
	require.False(t, l.HasReadLock(b))
}

func TestDataLockWriterExcludesReaders(t *testing.T) {
	l := NewDataLock()
	writer := NewLockToken()
	l.Lock(writer)

	reader := NewLockToken()
	acquired := make(chan struct{})
	go func() {
		l.RLock(reader)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("reader must not acquire while writer holds the lock")
	case <-time.After(50 * time.Millisecond):
	}

	l.Unlock(writer)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("reader should acquire once writer releases")
	}
	l.RUnlock(reader)
}

func TestDataLockUpgrade(t *testing.T) {
	l := NewDataLock()
	tok := NewLockToken()
	l.RLock(tok)
	require.True(t, l.HasReadLock(tok))
	l.TryUpgrade(tok)
	require.True(t, l.HasWriteLock(tok))
	l.Unlock(tok)
}

func TestDataLockConcurrentReadersDontRace(t *testing.T) {
	l := NewDataLock()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok := NewLockToken()
			l.RLock(tok)
			l.RUnlock(tok)
		}()
	}
	wg.Wait()
}
