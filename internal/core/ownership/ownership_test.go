package ownership

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClaimFirstIsSilent(t *testing.T) {
	r := NewRegistry()
	tr := r.Claim(1, 10)
	assert.False(t, tr.HadHolder)
	assert.False(t, tr.Changed(10))

	tr = r.Claim(1, 10)
	assert.True(t, tr.HadHolder)
	assert.False(t, tr.Changed(10))

	tr = r.Claim(1, 20)
	assert.True(t, tr.Changed(20))
	assert.Equal(t, int64(10), tr.Previous)

	owner, ok := r.Owner(1)
	assert.True(t, ok)
	assert.Equal(t, int64(20), owner)
}

func TestMigrate(t *testing.T) {
	r := NewRegistry()
	const a, b, c = 1, 2, 3
	r.Claim(1, b)
	r.Claim(2, b)
	r.Claim(3, c)

	moved := r.Migrate(b, a)
	assert.Equal(t, []int64{1, 2}, moved)
	assert.Equal(t, []int64{1, 2}, r.OwnedBy(a))
	assert.Empty(t, r.OwnedBy(b))
	assert.Equal(t, []int64{3}, r.OwnedBy(c))
}

func TestReleaseAndClear(t *testing.T) {
	r := NewRegistry()
	r.Claim(1, 5)
	r.Claim(2, 5)
	r.Claim(3, 6)

	r.Release(3)
	r.Release(3)
	_, ok := r.Owner(3)
	assert.False(t, ok)
	assert.Equal(t, map[int64]int64{1: 5, 2: 5}, r.Snapshot())

	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.OwnedBy(5))
}

// Every entity maps to at most one holder whatever sequence of claims and
// migrations runs.
func TestUniquenessUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	r := NewRegistry()
	shadow := map[int64]int64{}

	for i := 0; i < 5000; i++ {
		id := int64(rng.Intn(20))
		client := int64(rng.Intn(5))
		switch rng.Intn(4) {
		case 0, 1:
			r.Claim(id, client)
			shadow[id] = client
		case 2:
			to := int64(rng.Intn(5))
			r.Migrate(client, to)
			for k, v := range shadow {
				if v == client {
					shadow[k] = to
				}
			}
		case 3:
			r.Release(id)
			delete(shadow, id)
		}
	}

	assert.Equal(t, shadow, r.Snapshot())

	seen := map[int64]int{}
	for client := int64(0); client < 5; client++ {
		for _, id := range r.OwnedBy(client) {
			seen[id]++
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "entity %d has %d holders", id, n)
	}
}

func TestDamageLedgerShare(t *testing.T) {
	l := NewDamageLedger()
	assert.InDelta(t, 1.0, l.Record(1, 10, 20), 1e-6)
	assert.InDelta(t, 0.2, l.Record(1, 20, 5), 1e-6)
	assert.InDelta(t, 0.5, l.Record(1, 20, 15), 1e-6)

	assert.Equal(t, float32(0), l.Record(2, 10, -5))

	l.ForgetAttacker(10)
	assert.InDelta(t, 1.0, l.Record(1, 20, 0), 1e-6)

	l.Forget(1)
	assert.InDelta(t, 1.0, l.Record(1, 30, 1), 1e-6)
}
