package services

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dmitrijs2005/chunkvault/internal/common"
)

var virtualMemory = mem.VirtualMemoryWithContext

// MemoryGuard refuses reconstructions that would not fit in available
// memory. Reassembly holds the chunks and the joined payload at once, so
// the requirement is twice the payload plus headroom.
type MemoryGuard struct {
	headroom uint64
}

func NewMemoryGuard(headroom uint64) *MemoryGuard {
	return &MemoryGuard{headroom: headroom}
}

// Check returns common.ErrInsufficientMemory when payload bytes cannot be
// reassembled. A nil guard always passes.
func (g *MemoryGuard) Check(ctx context.Context, payload int64) error {
	if g == nil || payload <= 0 {
		return nil
	}
	vm, err := virtualMemory(ctx)
	if err != nil {
		// Unknown availability: let the reconstruction try.
		return nil
	}
	required := uint64(payload)*2 + g.headroom
	if vm.Available < required {
		return fmt.Errorf("%w: need %d bytes, %d available", common.ErrInsufficientMemory, required, vm.Available)
	}
	return nil
}
