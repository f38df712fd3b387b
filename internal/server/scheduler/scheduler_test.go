package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/chunkvault/internal/logging"
)

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New("sweep", "not a schedule", logging.NewNop(), func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestExecute_SkipsOverlappingRuns(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	s, err := New("sweep", "@every 1h", logging.NewNop(), func(ctx context.Context) error {
		calls.Add(1)
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.execute()
	}()
	<-started

	s.execute()
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	wg.Wait()
}

func TestExecute_ErrorIsLogged(t *testing.T) {
	var calls atomic.Int32
	s, err := New("sweep", "@every 1h", logging.NewNop(), func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("db down")
	})
	require.NoError(t, err)

	s.execute()
	s.execute()
	assert.Equal(t, int32(2), calls.Load())
}

func TestStartStop(t *testing.T) {
	ran := make(chan struct{}, 1)
	s, err := New("sweep", "@every 1s", logging.NewNop(), func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})
	require.NoError(t, err)

	s.Start()
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.Error(t, s.ctx.Err())
}
