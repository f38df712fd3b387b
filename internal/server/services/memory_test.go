package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrijs2005/chunkvault/internal/common"
)

func TestMemoryGuard(t *testing.T) {
	setAvailableMemory(t, 1000)

	var nilGuard *MemoryGuard
	assert.NoError(t, nilGuard.Check(context.Background(), 1<<40))

	g := NewMemoryGuard(100)
	assert.NoError(t, g.Check(context.Background(), 0))
	assert.NoError(t, g.Check(context.Background(), 450))

	err := g.Check(context.Background(), 451)
	assert.ErrorIs(t, err, common.ErrInsufficientMemory)
}

func TestMemoryGuard_UnknownAvailability(t *testing.T) {
	prev := virtualMemory
	virtualMemory = func(ctx context.Context) (*mem.VirtualMemoryStat, error) {
		return nil, errors.New("no /proc")
	}
	t.Cleanup(func() { virtualMemory = prev })

	assert.NoError(t, NewMemoryGuard(0).Check(context.Background(), 1<<40))
}
