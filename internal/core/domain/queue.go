package domain

import "time"

type QueueStatus string

const (
	QueuePending   QueueStatus = "pending"
	QueueActive    QueueStatus = "active"
	QueuePaused    QueueStatus = "paused"
	QueueCompleted QueueStatus = "completed"
)

type Schedule struct {
	OpenAt      time.Time
	CloseAt     *time.Time
	SaleStartAt time.Time
}

// Queue is the virtual waiting room for one event. ActiveCount sits next
// to ConcurrentActiveLimit so the admission check and the increment are
// a single compare-and-set on this record.
type Queue struct {
	ID                    string
	EventID               string
	Status                QueueStatus
	Schedule              Schedule
	ConcurrentActiveLimit uint
	ActiveCount           uint
	LastPosition          uint64
	ChallengeRequired     bool
	AvgServiceSeconds     float64
	Version               int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (q *Queue) Accepting(now time.Time) bool {
	if q.Status == QueueCompleted {
		return false
	}
	if q.Schedule.CloseAt != nil && !now.Before(*q.Schedule.CloseAt) {
		return false
	}
	return true
}

func (q *Queue) Admitting(now time.Time) bool {
	return q.Status == QueueActive && !now.Before(q.Schedule.SaleStartAt)
}

func (q *Queue) HasFreeSlot() bool {
	return q.ActiveCount < q.ConcurrentActiveLimit
}

// Gates reports whether reservations for the queue's event currently
// require an admission token.
func (q *Queue) Gates() bool {
	return q.Status != QueueCompleted
}

type EntryStatus string

const (
	EntryWaiting   EntryStatus = "waiting"
	EntryChallenge EntryStatus = "challenge"
	EntryActive    EntryStatus = "active"
	EntryCompleted EntryStatus = "completed"
	EntryExpired   EntryStatus = "expired"
)

type QueueEntry struct {
	ID              string
	QueueID         string
	CustomerID      string
	SessionID       string
	FingerprintHash string
	Position        uint64
	Status          EntryStatus
	JoinedAt        time.Time
	LastSeenAt      time.Time
	EligibleAt      time.Time
	ActivatedAt     *time.Time
	ExpiresAt       *time.Time
	AccessToken     string
	RequeueCount    int
	Version         int
}

func (e *QueueEntry) IsTerminal() bool {
	return e.Status == EntryCompleted || e.Status == EntryExpired
}

// Eligible reports whether a waiting entry may be activated at now.
func (e *QueueEntry) Eligible(now time.Time) bool {
	return e.Status == EntryWaiting && !now.Before(e.EligibleAt)
}

type PositionInfo struct {
	EntryID              string      `json:"entry_id"`
	Position             uint64      `json:"position"`
	Ahead                int         `json:"ahead"`
	Status               EntryStatus `json:"status"`
	EstimatedWaitSeconds int64       `json:"estimated_wait_seconds"`
}
