package crypto

import "github.com/mr-pandabear/pandanode/model"

// IntermediateCache stores and retrieves previously computed Pufferfish
// scratch state, keyed by header hash. stores/pufferfish.Store satisfies
// this directly.
type IntermediateCache interface {
	Get(headerHash model.Hash) ([]byte, bool)
	Put(headerHash model.Hash, state []byte) error
}

// pufferfishRounds is the number of scratchpad-growth passes PowHash runs
// when the cache misses, making the proof-of-work hash memory-hard rather
// than a single fixed-cost digest.
const pufferfishRounds = 64

// Pufferfish wraps a base Hasher and makes its proof-of-work hash
// memory-hard, the PUFFERFISH_START_BLOCK variant. ContentHash (used for
// transaction/block identity, not proof-of-work) is unaffected and simply
// delegates to Base.
type Pufferfish struct {
	Base  Hasher
	Cache IntermediateCache
}

var _ Hasher = Pufferfish{}

func (p Pufferfish) ContentHash(data []byte) model.Hash {
	return p.Base.ContentHash(data)
}

// PowHash runs the header through pufferfishRounds passes of a growing
// scratchpad, caching the final state under the header's content hash so
// re-validating the same header (a batch re-fetch, a reorg replay) skips
// the memory-hard work.
func (p Pufferfish) PowHash(header []byte) model.Hash {
	key := p.Base.ContentHash(header)
	if p.Cache != nil {
		if cached, ok := p.Cache.Get(key); ok {
			var out model.Hash
			copy(out[:], cached)
			return out
		}
	}

	state := key
	scratch := append([]byte(nil), header...)
	for i := 0; i < pufferfishRounds; i++ {
		scratch = append(scratch, state.Bytes()...)
		state = p.Base.ContentHash(scratch)
	}

	if p.Cache != nil {
		_ = p.Cache.Put(key, state.Bytes())
	}
	return state
}
