package txguard

import (
	"sync"

	"gorm.io/gorm"
)

// Rank is the position of an entity type in the global lock acquisition order.
// Every transaction that locks more than one entity type must acquire in
// non-decreasing rank order; this makes deadlock between pipelines
// structurally impossible. Locking the same row twice through different query
// paths is safe and not an ordering concern.
type Rank int

const (
	// RankCoarse: Tournament and Session, the capacity-owning entities.
	RankCoarse Rank = 1
	// RankOwner: UserAccount and UserLicense, the progression-state owners.
	RankOwner Rank = 2
	// RankFine: Enrollment and Booking, the individual membership rows.
	RankFine Rank = 3
)

// LockOrder records the highest rank locked so far in one transaction and
// rejects out-of-order acquisitions. Zero value is ready to use.
type LockOrder struct {
	mu   sync.Mutex
	held Rank
}

// Acquire records an acquisition at rank r, failing fast if r is below the
// highest rank already held.
func (o *LockOrder) Acquire(r Rank) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r < o.held {
		return &LockOrderError{Held: o.held, Requested: r}
	}
	o.held = r
	return nil
}

// Held returns the highest rank acquired so far.
func (o *LockOrder) Held() Rank {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.held
}

const lockOrderKey = "txguard:lock_order"

// Track attaches a fresh LockOrder to the transaction handle. Pipelines call
// it once at the top of their transaction closure; every lock primitive below
// consults it. A handle without a tracker skips the assertion.
func Track(tx *gorm.DB) *gorm.DB {
	return tx.Set(lockOrderKey, &LockOrder{})
}

func trackerFrom(tx *gorm.DB) *LockOrder {
	v, ok := tx.Get(lockOrderKey)
	if !ok {
		return nil
	}
	o, _ := v.(*LockOrder)
	return o
}

func acquire(tx *gorm.DB, r Rank) error {
	if o := trackerFrom(tx); o != nil {
		return o.Acquire(r)
	}
	return nil
}
