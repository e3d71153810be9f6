package generic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolResetsOnPut(t *testing.T) {
	p := NewPool(func() *[]byte {
		b := make([]byte, 0, 8)
		return &b
	}, func(b *[]byte) { *b = (*b)[:0] })

	b := p.Get()
	*b = append(*b, 1, 2, 3)
	p.Put(b)
	assert.Empty(t, *b)

	again := p.Get()
	assert.Empty(t, *again)
}
