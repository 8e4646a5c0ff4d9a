package models

import "time"

// Session is a bookable practice slot with a hard capacity. Unlike
// tournaments, its occupancy is tracked in a counter column so the booking
// pipeline can enforce capacity with a single guarded UPDATE.
type Session struct {
	ID    string `json:"id" gorm:"primaryKey;type:uuid"`
	Title string `json:"title" gorm:"not null"`

	Capacity   int   `json:"capacity" gorm:"not null;check:capacity > 0"`
	CreditCost int64 `json:"credit_cost" gorm:"not null;default:0;check:credit_cost >= 0"`

	// BookedCount mirrors the number of active bookings. Mutated only through
	// guarded atomic updates; the invariant monitor cross-checks it against
	// the actual active-booking count.
	BookedCount int `json:"booked_count" gorm:"not null;default:0;check:booked_count >= 0"`

	Open     bool      `json:"open" gorm:"not null;default:true"`
	StartsAt time.Time `json:"starts_at"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Booking is one user's claim on a session slot.
//
// Active=true means the user holds a confirmed seat. A non-nil Slot means the
// booking is waitlisted at that ordinal (1 = next in line). A booking is never
// both active and waitlisted. Cancelled bookings have Active=false, Slot=nil
// and CancelledAt set.
//
// Waitlist ordinals are explicit integers under a partial unique index rather
// than an implicit insertion order, so promotion and re-normalization are
// deterministic (see booking_service.go).
type Booking struct {
	ID        string `json:"id" gorm:"primaryKey;type:uuid"`
	SessionID string `json:"session_id" gorm:"not null;index"`
	UserID    string `json:"user_id" gorm:"not null;index"`

	Active bool  `json:"active" gorm:"not null;default:false"`
	Slot   *int  `json:"slot,omitempty"`
	Cost   int64 `json:"cost" gorm:"not null;default:0"`

	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}
