package session

import (
	"sync"

	"github.com/apex-build/cdp-debugger/internal/dbgerr"
)

// PortAllocator hands out inspector ports from a fixed range, mirroring the
// teacher's internal/debugging/debugger.go PortAllocator.
type PortAllocator struct {
	mu        sync.Mutex
	basePort  int
	maxPort   int
	allocated map[int]bool
}

// NewPortAllocator constructs an allocator over [base, max] inclusive.
func NewPortAllocator(base, max int) *PortAllocator {
	return &PortAllocator{basePort: base, maxPort: max, allocated: make(map[int]bool)}
}

// Allocate reserves the lowest free port in range.
func (p *PortAllocator) Allocate() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for port := p.basePort; port <= p.maxPort; port++ {
		if !p.allocated[port] {
			p.allocated[port] = true
			return port, nil
		}
	}
	return 0, dbgerr.New(dbgerr.Internal, "no available inspector ports in range %d-%d", p.basePort, p.maxPort)
}

// Release returns a port to the pool.
func (p *PortAllocator) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.allocated, port)
}
