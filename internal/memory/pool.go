// Package memory pools Arrow allocators so scan readers and builders don't
// construct one per call.
package memory

import (
	"sync"

	"github.com/apache/arrow/go/v17/arrow/memory"
)

var pool = sync.Pool{
	New: func() interface{} {
		return memory.NewGoAllocator()
	},
}

// GetAllocator retrieves an allocator from the pool, creating one if the
// pool is empty.
func GetAllocator() memory.Allocator {
	return pool.Get().(memory.Allocator)
}

// PutAllocator returns an allocator to the pool.
func PutAllocator(alloc memory.Allocator) {
	pool.Put(alloc)
}
