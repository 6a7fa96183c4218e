// Package programs implements Layer-2 "programs" as dynamically registered
// sub-ledgers: a mapping program_id -> sub-ledger handle. Unknown ids yield
// UnsupportedChain. Their internal execution is out of scope here; this
// registry only decides whether a program_id is recognized and gives the
// mempool somewhere to route program transactions.
package programs

import (
	"sync"

	"github.com/mr-pandabear/pandanode/model"
)

// Ledger is the opaque handle a registered program presents. Execution
// semantics are the program's own business; the registry only needs
// enough surface to let the mempool maintain a per-program pending queue.
type Ledger interface {
	ID() model.Hash
}

// Registry maps program_id -> Ledger.
type Registry struct {
	mu       sync.RWMutex
	ledgers  map[model.Hash]Ledger
}

func NewRegistry() *Registry {
	return &Registry{ledgers: make(map[model.Hash]Ledger)}
}

// Register adds or replaces the handle for l.ID().
func (r *Registry) Register(l Ledger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledgers[l.ID()] = l
}

// Lookup returns the ledger for id, if any is registered.
func (r *Registry) Lookup(id model.Hash) (Ledger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.ledgers[id]
	return l, ok
}
