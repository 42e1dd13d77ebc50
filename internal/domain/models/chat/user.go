package chat

import (
	"time"
)

// Subscription tiers
const (
	TierFree = "free"
	TierPro  = "pro"
)

// User holds the account state the turn pipeline consumes: the metered
// free-message counter and the long-lived memory blob. Billing events that
// change Tier or top up FreeMessages arrive through an external webhook
// processor; the pipeline only decrements and reads.
type User struct {
	ID                string    `json:"id" db:"id"`
	Tier              string    `json:"tier" db:"tier"`
	FreeMessages      int       `json:"free_messages" db:"free_messages"`
	Memory            *string   `json:"memory,omitempty" db:"memory"`
	MemoryEnabled     bool      `json:"memory_enabled" db:"memory_enabled"`
	BillingCustomerID *string   `json:"-" db:"billing_customer_id"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// HasMemory reports whether memory injection applies for this user.
func (u *User) HasMemory() bool {
	return u.MemoryEnabled && u.Memory != nil && *u.Memory != ""
}
