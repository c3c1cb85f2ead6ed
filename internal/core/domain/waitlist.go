package domain

import "time"

type WaitlistStatus string

const (
	WaitlistWaiting   WaitlistStatus = "waiting"
	WaitlistNotified  WaitlistStatus = "notified"
	WaitlistPurchased WaitlistStatus = "purchased"
	WaitlistCancelled WaitlistStatus = "cancelled"
	WaitlistExpired   WaitlistStatus = "expired"
)

// WaitlistEntry is a customer's request to be told when inventory frees
// up. An empty UnitID matches any unit of the event.
type WaitlistEntry struct {
	ID                    string
	EventID               string
	UnitID                string
	CustomerID            string
	OfferUnitID           string
	Status                WaitlistStatus
	JoinedAt              time.Time
	NotifiedAt            *time.Time
	NotificationExpiresAt *time.Time
	Version               int
}

func (w *WaitlistEntry) IsTerminal() bool {
	switch w.Status {
	case WaitlistPurchased, WaitlistCancelled, WaitlistExpired:
		return true
	}
	return false
}

type NotificationKind string

const (
	NotifyWaitlistOffer NotificationKind = "waitlist.offer"
	NotifyQueueAdmitted NotificationKind = "queue.admitted"
)

// Notification is handed to the fire-and-forget notification channel.
type Notification struct {
	Kind       NotificationKind `json:"kind"`
	CustomerID string           `json:"customer_id"`
	EventID    string           `json:"event_id"`
	UnitID     string           `json:"unit_id,omitempty"`
	EntryID    string           `json:"entry_id"`
	ExpiresAt  time.Time        `json:"expires_at"`
	SentAt     time.Time        `json:"sent_at"`
}
