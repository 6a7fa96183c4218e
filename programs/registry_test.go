package programs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mr-pandabear/pandanode/model"
)

type fakeLedger struct {
	id model.Hash
}

func (f fakeLedger) ID() model.Hash { return f.id }

func TestLookupOnEmptyRegistryReportsNotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup(model.Hash{1})
	assert.False(t, ok)
}

func TestRegisterThenLookupRoundTrips(t *testing.T) {
	r := NewRegistry()
	l := fakeLedger{id: model.Hash{2}}
	r.Register(l)

	got, ok := r.Lookup(model.Hash{2})
	assert.True(t, ok)
	assert.Equal(t, l, got)
}

func TestRegisterReplacesExistingHandleForSameID(t *testing.T) {
	r := NewRegistry()
	id := model.Hash{3}
	r.Register(fakeLedger{id: id})
	replacement := fakeLedger{id: id}
	r.Register(replacement)

	got, ok := r.Lookup(id)
	assert.True(t, ok)
	assert.Equal(t, replacement, got)
}

func TestLookupUnknownIDDoesNotMatchDifferentRegisteredID(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeLedger{id: model.Hash{4}})

	_, ok := r.Lookup(model.Hash{5})
	assert.False(t, ok)
}
