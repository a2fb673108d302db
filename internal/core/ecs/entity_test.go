package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityPoolNeverIssuesNull(t *testing.T) {
	p := NewEntityPool()
	id := p.Create()
	assert.False(t, id.IsZero())
	assert.Equal(t, uint32(0), id.Index())
	assert.Equal(t, uint32(1), id.Generation())
}

func TestEntityPoolReuseBumpsGeneration(t *testing.T) {
	p := NewEntityPool()
	first := p.Create()
	require.True(t, p.Destroy(first))
	assert.False(t, p.Alive(first))
	assert.False(t, p.Destroy(first), "stale id must not destroy twice")

	second := p.Create()
	assert.Equal(t, first.Index(), second.Index())
	assert.Equal(t, first.Generation()+1, second.Generation())
	assert.True(t, p.Alive(second))
	assert.False(t, p.Alive(first))
	assert.Equal(t, 1, p.Len())
}

func TestEntityPoolEachSkipsDead(t *testing.T) {
	p := NewEntityPool()
	a := p.Create()
	b := p.Create()
	c := p.Create()
	p.Destroy(b)

	var seen []EntityID
	p.Each(func(id EntityID) { seen = append(seen, id) })
	assert.Equal(t, []EntityID{a, c}, seen)
}

func TestEntityPoolUnknownIndex(t *testing.T) {
	p := NewEntityPool()
	assert.False(t, p.Alive(NewEntityID(7, 1)))
	assert.False(t, p.Destroy(NewEntityID(7, 1)))
}
