package ownership

import "sync"

// DamageLedger accumulates damage per creature and attacker so authority can
// follow whoever is doing most of the fighting.
type DamageLedger struct {
	mu    sync.Mutex
	dealt map[int64]map[int64]float32
}

func NewDamageLedger() *DamageLedger {
	return &DamageLedger{dealt: make(map[int64]map[int64]float32)}
}

// Record adds damage by attacker to creature and returns the attacker's share
// of all damage the creature has taken. Non-positive damage (healing) is not
// recorded and reports the current share.
func (l *DamageLedger) Record(creature, attacker int64, damage float32) float32 {
	l.mu.Lock()
	defer l.mu.Unlock()

	byAttacker := l.dealt[creature]
	if byAttacker == nil {
		byAttacker = make(map[int64]float32)
		l.dealt[creature] = byAttacker
	}
	if damage > 0 {
		byAttacker[attacker] += damage
	}

	var total float32
	for _, d := range byAttacker {
		total += d
	}
	if total <= 0 {
		return 0
	}
	return byAttacker[attacker] / total
}

// Forget drops the history of a despawned creature.
func (l *DamageLedger) Forget(creature int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.dealt, creature)
}

// ForgetAttacker drops everything attacker dealt, e.g. when they leave.
func (l *DamageLedger) ForgetAttacker(attacker int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, byAttacker := range l.dealt {
		delete(byAttacker, attacker)
	}
}

func (l *DamageLedger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.dealt)
}
