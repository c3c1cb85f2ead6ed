package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
	"github.com/srgjo27/ticket_engine/internal/core/ports"
)

// RequeuePolicy decides what a failed challenge costs an entry.
type RequeuePolicy string

const (
	// RequeueTail gives the entry a fresh position at the end of the queue.
	RequeueTail RequeuePolicy = "tail"
	// RequeuePenalty keeps the position but holds the entry back for
	// PenaltyDelay.
	RequeuePenalty RequeuePolicy = "penalty"
)

func ParseRequeuePolicy(s string) (RequeuePolicy, error) {
	switch p := RequeuePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case RequeueTail, RequeuePenalty:
		return p, nil
	case "":
		return RequeueTail, nil
	}
	return "", fmt.Errorf("unknown requeue policy %q", s)
}

type AdmissionConfig struct {
	SessionTTL     time.Duration
	IdleTTL        time.Duration
	ChallengeTTL   time.Duration
	RequeuePolicy  RequeuePolicy
	PenaltyDelay   time.Duration
	FingerprintKey []byte
	BatchSize      int
}

func (c AdmissionConfig) withDefaults() AdmissionConfig {
	if c.SessionTTL <= 0 {
		c.SessionTTL = 10 * time.Minute
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 15 * time.Minute
	}
	if c.ChallengeTTL <= 0 {
		c.ChallengeTTL = 2 * time.Minute
	}
	if c.RequeuePolicy == "" {
		c.RequeuePolicy = RequeueTail
	}
	if c.PenaltyDelay <= 0 {
		c.PenaltyDelay = time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	return c
}

// defaultServiceSeconds seeds wait estimates before any session finished.
const defaultServiceSeconds = 60.0

// serviceSmoothing is the weight of the newest sample in the moving
// average of session durations.
const serviceSmoothing = 0.2

type CreateQueueRequest struct {
	EventID           string
	Schedule          domain.Schedule
	Limit             uint
	ChallengeRequired bool
}

type JoinRequest struct {
	QueueID     string
	CustomerID  string
	Fingerprint string
}

type TickResult struct {
	Opened    int
	Closed    int
	Activated int
}

type QueueSweepResult struct {
	Expired   int
	Activated int
}

// AdmissionService is the virtual waiting room. Every change to a queue
// or its entries runs under the queue's lock, which makes activation
// single-flight per queue.
type AdmissionService struct {
	queues   ports.QueueRepository
	entries  ports.QueueEntryRepository
	tokens   ports.TokenIssuer
	notifier ports.Notifier
	rt       Runtime
	cfg      AdmissionConfig
}

type AdmissionOption func(*AdmissionService)

// WithAdmissionNotifier tells customers when their session is admitted.
func WithAdmissionNotifier(n ports.Notifier) AdmissionOption {
	return func(s *AdmissionService) { s.notifier = n }
}

func NewAdmissionService(queues ports.QueueRepository, entries ports.QueueEntryRepository, tokens ports.TokenIssuer, rt Runtime, cfg AdmissionConfig, opts ...AdmissionOption) *AdmissionService {
	s := &AdmissionService{
		queues:  queues,
		entries: entries,
		tokens:  tokens,
		rt:      rt.withDefaults(),
		cfg:     cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AdmissionService) CreateQueue(ctx context.Context, req CreateQueueRequest) (*domain.Queue, error) {
	if req.EventID == "" {
		return nil, fmt.Errorf("%w: event is required", domain.ErrInvalidRequest)
	}
	if req.Schedule.CloseAt != nil && !req.Schedule.CloseAt.After(req.Schedule.OpenAt) {
		return nil, fmt.Errorf("%w: close must be after open", domain.ErrInvalidRequest)
	}
	existing, err := s.queues.GetByEvent(ctx, req.EventID)
	if err != nil && !errors.Is(err, domain.ErrQueueNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: event %s already has queue %s", domain.ErrAlreadyExists, req.EventID, existing.ID)
	}

	now := s.rt.now()
	q := &domain.Queue{
		ID:                    uuid.NewString(),
		EventID:               req.EventID,
		Status:                domain.QueuePending,
		Schedule:              req.Schedule,
		ConcurrentActiveLimit: req.Limit,
		ChallengeRequired:     req.ChallengeRequired,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if !now.Before(req.Schedule.OpenAt) {
		q.Status = domain.QueueActive
	}
	if err := s.queues.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create queue: %w", err)
	}
	s.rt.Log.Infow("queue created", "queue_id", q.ID, "event_id", q.EventID, "limit", q.ConcurrentActiveLimit, "status", q.Status)
	return q, nil
}

func (s *AdmissionService) GetQueue(ctx context.Context, queueID string) (*domain.Queue, error) {
	return s.queues.GetByID(ctx, queueID)
}

func (s *AdmissionService) Pause(ctx context.Context, queueID string) (*domain.Queue, error) {
	return s.updateQueue(ctx, queueID, func(q *domain.Queue) error {
		switch q.Status {
		case domain.QueuePaused:
			return nil
		case domain.QueueActive, domain.QueuePending:
			q.Status = domain.QueuePaused
			return nil
		}
		return fmt.Errorf("%w: cannot pause a %s queue", domain.ErrInvalidTransition, q.Status)
	})
}

func (s *AdmissionService) Resume(ctx context.Context, queueID string) (*domain.Queue, error) {
	q, err := s.updateQueue(ctx, queueID, func(q *domain.Queue) error {
		switch q.Status {
		case domain.QueueActive:
			return nil
		case domain.QueuePaused:
			q.Status = domain.QueueActive
			return nil
		}
		return fmt.Errorf("%w: cannot resume a %s queue", domain.ErrInvalidTransition, q.Status)
	})
	if err != nil {
		return nil, err
	}
	s.fill(ctx, queueID)
	return q, nil
}

// SetLimit changes how many sessions may be active at once. Lowering it
// below the current count lets the active sessions finish.
func (s *AdmissionService) SetLimit(ctx context.Context, queueID string, limit uint) (*domain.Queue, error) {
	q, err := s.updateQueue(ctx, queueID, func(q *domain.Queue) error {
		q.ConcurrentActiveLimit = limit
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.fill(ctx, queueID)
	return q, nil
}

// Close completes the queue. Its event stops being gated.
func (s *AdmissionService) Close(ctx context.Context, queueID string) (*domain.Queue, error) {
	return s.updateQueue(ctx, queueID, func(q *domain.Queue) error {
		q.Status = domain.QueueCompleted
		return nil
	})
}

func (s *AdmissionService) updateQueue(ctx context.Context, queueID string, mutate func(q *domain.Queue) error) (*domain.Queue, error) {
	var result *domain.Queue
	err := s.rt.locked(ctx, []string{domain.QueueKey(queueID)}, func(ctx context.Context) error {
		q, err := s.queues.GetByID(ctx, queueID)
		if err != nil {
			return err
		}
		before := *q
		if err := mutate(q); err != nil {
			return err
		}
		if q.Status == before.Status && q.ConcurrentActiveLimit == before.ConcurrentActiveLimit {
			result = q
			return nil
		}
		q.UpdatedAt = s.rt.now()
		if err := s.queues.Update(ctx, q); err != nil {
			return err
		}
		result = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.rt.Log.Infow("queue updated", "queue_id", queueID, "status", result.Status, "limit", result.ConcurrentActiveLimit)
	return result, nil
}

// fingerprintHash keys the fingerprint so stored hashes cannot be matched
// against a public dictionary of device fingerprints.
func (s *AdmissionService) fingerprintHash(fingerprint string) (string, error) {
	key := s.cfg.FingerprintKey
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		return "", err
	}
	h.Write([]byte(fingerprint))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Join appends the customer at the tail. The same customer joining again
// with the same fingerprint while the earlier entry is still open gets that
// entry back. Other customers sharing the fingerprint get their own entry.
func (s *AdmissionService) Join(ctx context.Context, req JoinRequest) (*domain.QueueEntry, error) {
	if req.QueueID == "" || req.CustomerID == "" {
		return nil, fmt.Errorf("%w: queue and customer are required", domain.ErrInvalidRequest)
	}
	var hash string
	if req.Fingerprint != "" {
		h, err := s.fingerprintHash(req.Fingerprint)
		if err != nil {
			return nil, fmt.Errorf("hash fingerprint: %w", err)
		}
		hash = h
	}

	var (
		result *domain.QueueEntry
		joined bool
	)
	err := s.rt.locked(ctx, []string{domain.QueueKey(req.QueueID)}, func(ctx context.Context) error {
		result, joined = nil, false
		q, err := s.queues.GetByID(ctx, req.QueueID)
		if err != nil {
			return err
		}
		now := s.rt.now()
		if !q.Accepting(now) {
			return domain.ErrQueueClosed
		}

		if hash != "" {
			existing, err := s.entries.FindOpenByFingerprint(ctx, q.ID, req.CustomerID, hash)
			if err == nil {
				result = existing
				return nil
			}
			if !errors.Is(err, domain.ErrEntryNotFound) {
				return err
			}
		}

		q.LastPosition++
		q.UpdatedAt = now
		if err := s.queues.Update(ctx, q); err != nil {
			return err
		}

		entry := &domain.QueueEntry{
			ID:              uuid.NewString(),
			QueueID:         q.ID,
			CustomerID:      req.CustomerID,
			SessionID:       uuid.NewString(),
			FingerprintHash: hash,
			Position:        q.LastPosition,
			Status:          domain.EntryWaiting,
			JoinedAt:        now,
			LastSeenAt:      now,
			EligibleAt:      now,
		}
		if q.ChallengeRequired {
			entry.Status = domain.EntryChallenge
		}
		// A position consumed by a failed create is simply skipped.
		if err := s.entries.Create(ctx, entry); err != nil {
			return fmt.Errorf("create entry: %w", err)
		}
		result, joined = entry, true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if joined {
		s.rt.Log.Debugw("queue joined", "queue_id", result.QueueID, "entry_id", result.ID, "position", result.Position)
	}
	return result, nil
}

func (s *AdmissionService) GetEntry(ctx context.Context, entryID string) (*domain.QueueEntry, error) {
	return s.entries.GetByID(ctx, entryID)
}

// withEntry runs fn on a fresh copy of the entry under its queue's lock.
func (s *AdmissionService) withEntry(ctx context.Context, entryID string, fn func(ctx context.Context, e *domain.QueueEntry) error) (*domain.QueueEntry, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	var result *domain.QueueEntry
	err = s.rt.locked(ctx, []string{domain.QueueKey(entry.QueueID)}, func(ctx context.Context) error {
		current, err := s.entries.GetByID(ctx, entryID)
		if err != nil {
			return err
		}
		if err := fn(ctx, current); err != nil {
			return err
		}
		result = current
		return nil
	})
	return result, err
}

// PassChallenge makes the entry eligible for activation at its position.
func (s *AdmissionService) PassChallenge(ctx context.Context, entryID string) (*domain.QueueEntry, error) {
	return s.withEntry(ctx, entryID, func(ctx context.Context, e *domain.QueueEntry) error {
		switch e.Status {
		case domain.EntryWaiting:
			return nil
		case domain.EntryChallenge:
		default:
			return fmt.Errorf("%w: entry is %s", domain.ErrInvalidTransition, e.Status)
		}
		now := s.rt.now()
		e.Status = domain.EntryWaiting
		e.EligibleAt = now
		e.LastSeenAt = now
		return s.entries.Update(ctx, e)
	})
}

// FailChallenge requeues the entry as waiting under the configured policy.
func (s *AdmissionService) FailChallenge(ctx context.Context, entryID string) (*domain.QueueEntry, error) {
	return s.withEntry(ctx, entryID, func(ctx context.Context, e *domain.QueueEntry) error {
		if e.Status != domain.EntryChallenge {
			return fmt.Errorf("%w: entry is %s", domain.ErrInvalidTransition, e.Status)
		}
		now := s.rt.now()
		e.Status = domain.EntryWaiting
		e.LastSeenAt = now
		e.RequeueCount++

		switch s.cfg.RequeuePolicy {
		case RequeuePenalty:
			e.EligibleAt = now.Add(s.cfg.PenaltyDelay)
		default:
			q, err := s.queues.GetByID(ctx, e.QueueID)
			if err != nil {
				return err
			}
			q.LastPosition++
			q.UpdatedAt = now
			if err := s.queues.Update(ctx, q); err != nil {
				return err
			}
			e.Position = q.LastPosition
			e.EligibleAt = now
		}
		return s.entries.Update(ctx, e)
	})
}

// ActivateNext admits the lowest-position eligible waiting entry.
func (s *AdmissionService) ActivateNext(ctx context.Context, queueID string) (*domain.QueueEntry, error) {
	var (
		result *domain.QueueEntry
		queue  *domain.Queue
	)
	err := s.rt.locked(ctx, []string{domain.QueueKey(queueID)}, func(ctx context.Context) error {
		result, queue = nil, nil
		q, err := s.queues.GetByID(ctx, queueID)
		if err != nil {
			return err
		}
		now := s.rt.now()
		if !q.Admitting(now) {
			return domain.ErrQueueClosed
		}
		if !q.HasFreeSlot() {
			return domain.ErrQueueFull
		}
		entry, err := s.entries.NextEligible(ctx, queueID, now)
		if err != nil {
			if errors.Is(err, domain.ErrEntryNotFound) {
				return domain.ErrNoWaitingEntries
			}
			return err
		}
		if err := s.activate(ctx, q, entry, now); err != nil {
			return err
		}
		result, queue = entry, q
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.admitted(ctx, queue, result)
	return result, nil
}

// ActivateEntry admits a specific entry regardless of its position. The
// limit still applies.
func (s *AdmissionService) ActivateEntry(ctx context.Context, entryID string) (*domain.QueueEntry, error) {
	var queue *domain.Queue
	entry, err := s.withEntry(ctx, entryID, func(ctx context.Context, e *domain.QueueEntry) error {
		queue = nil
		if e.Status == domain.EntryActive {
			return nil
		}
		if e.Status != domain.EntryWaiting && e.Status != domain.EntryChallenge {
			return fmt.Errorf("%w: entry is %s", domain.ErrInvalidTransition, e.Status)
		}
		q, err := s.queues.GetByID(ctx, e.QueueID)
		if err != nil {
			return err
		}
		if q.Status == domain.QueueCompleted {
			return domain.ErrQueueClosed
		}
		if !q.HasFreeSlot() {
			return domain.ErrQueueFull
		}
		if err := s.activate(ctx, q, e, s.rt.now()); err != nil {
			return err
		}
		queue = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	if queue != nil {
		s.rt.Log.Infow("queue entry activated by operator", "queue_id", queue.ID, "entry_id", entry.ID, "position", entry.Position)
		s.admitted(ctx, queue, entry)
	}
	return entry, nil
}

// activate takes a slot and promotes the entry. The caller holds the
// queue lock.
func (s *AdmissionService) activate(ctx context.Context, q *domain.Queue, e *domain.QueueEntry, now time.Time) error {
	expires := now.Add(s.cfg.SessionTTL)
	token, err := s.tokens.Issue(ports.AccessClaims{
		EntryID:   e.ID,
		QueueID:   q.ID,
		SessionID: e.SessionID,
		ExpiresAt: expires,
	})
	if err != nil {
		return fmt.Errorf("issue access token: %w", err)
	}

	restore := *q
	q.ActiveCount++
	q.UpdatedAt = now
	if err := s.queues.Update(ctx, q); err != nil {
		return err
	}

	e.Status = domain.EntryActive
	e.ActivatedAt = &now
	e.ExpiresAt = &expires
	e.AccessToken = token
	e.LastSeenAt = now
	if err := s.entries.Update(ctx, e); err != nil {
		s.restoreQueue(ctx, q, &restore)
		return err
	}
	return nil
}

func (s *AdmissionService) restoreQueue(ctx context.Context, current, saved *domain.Queue) {
	saved.Version = current.Version
	saved.UpdatedAt = s.rt.now()
	if err := s.queues.Update(ctx, saved); err != nil {
		s.rt.Log.Errorw("failed to restore queue", "queue_id", saved.ID, "error", err)
	}
}

func (s *AdmissionService) admitted(ctx context.Context, q *domain.Queue, e *domain.QueueEntry) {
	s.rt.Log.Debugw("queue entry activated", "queue_id", q.ID, "entry_id", e.ID, "position", e.Position, "active", q.ActiveCount)
	if s.notifier == nil {
		return
	}
	n := domain.Notification{
		Kind:       domain.NotifyQueueAdmitted,
		CustomerID: e.CustomerID,
		EventID:    q.EventID,
		EntryID:    e.ID,
		ExpiresAt:  *e.ExpiresAt,
		SentAt:     s.rt.now(),
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.rt.Log.Warnw("failed to notify admitted entry", "entry_id", e.ID, "error", err)
	}
}

// fill activates entries until the queue is full or nobody is eligible.
func (s *AdmissionService) fill(ctx context.Context, queueID string) int {
	n := 0
	for {
		_, err := s.ActivateNext(ctx, queueID)
		if err == nil {
			n++
			continue
		}
		switch {
		case errors.Is(err, domain.ErrQueueFull),
			errors.Is(err, domain.ErrNoWaitingEntries),
			errors.Is(err, domain.ErrQueueClosed):
		default:
			s.rt.Log.Warnw("failed to fill queue", "queue_id", queueID, "error", err)
		}
		return n
	}
}

// CompleteSession ends an admitted session after checkout and admits the
// next entry. Completing twice is a no-op.
func (s *AdmissionService) CompleteSession(ctx context.Context, sessionID string) (*domain.QueueEntry, error) {
	return s.endSession(ctx, sessionID, domain.EntryCompleted)
}

// ExpireSession times out a session and admits the next entry. Expiring
// twice is a no-op.
func (s *AdmissionService) ExpireSession(ctx context.Context, sessionID string) (*domain.QueueEntry, error) {
	return s.endSession(ctx, sessionID, domain.EntryExpired)
}

func (s *AdmissionService) endSession(ctx context.Context, sessionID string, to domain.EntryStatus) (*domain.QueueEntry, error) {
	entry, err := s.entries.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	freed := false
	result, err := s.withEntry(ctx, entry.ID, func(ctx context.Context, e *domain.QueueEntry) error {
		var err error
		freed, err = s.end(ctx, e, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	if freed {
		s.fill(ctx, result.QueueID)
	}
	return result, nil
}

// end moves the entry to a terminal status and reports whether a slot was
// freed. The caller holds the queue lock.
func (s *AdmissionService) end(ctx context.Context, e *domain.QueueEntry, to domain.EntryStatus) (bool, error) {
	if e.Status == to {
		return false, nil
	}
	if e.IsTerminal() {
		return false, fmt.Errorf("%w: entry is already %s", domain.ErrInvalidTransition, e.Status)
	}
	if to == domain.EntryCompleted && e.Status != domain.EntryActive {
		return false, fmt.Errorf("%w: only an active session can complete", domain.ErrInvalidTransition)
	}

	now := s.rt.now()
	wasActive := e.Status == domain.EntryActive
	e.Status = to
	e.LastSeenAt = now
	if !wasActive {
		return false, s.entries.Update(ctx, e)
	}

	q, err := s.queues.GetByID(ctx, e.QueueID)
	if err != nil {
		return false, err
	}
	restore := *q
	if q.ActiveCount > 0 {
		q.ActiveCount--
	} else {
		s.rt.Log.Warnw("queue active count already zero", "queue_id", q.ID, "entry_id", e.ID)
	}
	if e.ActivatedAt != nil {
		sample := now.Sub(*e.ActivatedAt).Seconds()
		if q.AvgServiceSeconds == 0 {
			q.AvgServiceSeconds = sample
		} else {
			q.AvgServiceSeconds = (1-serviceSmoothing)*q.AvgServiceSeconds + serviceSmoothing*sample
		}
	}
	q.UpdatedAt = now
	if err := s.queues.Update(ctx, q); err != nil {
		return false, err
	}
	if err := s.entries.Update(ctx, e); err != nil {
		s.restoreQueue(ctx, q, &restore)
		return false, err
	}
	return true, nil
}

// ValidateAccessToken returns the active entry the token was issued to.
func (s *AdmissionService) ValidateAccessToken(ctx context.Context, token string) (*domain.QueueEntry, error) {
	if token == "" {
		return nil, domain.ErrInvalidAccessToken
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, domain.ErrInvalidAccessToken
	}
	entry, err := s.entries.GetByID(ctx, claims.EntryID)
	if err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			return nil, domain.ErrInvalidAccessToken
		}
		return nil, err
	}
	now := s.rt.now()
	if entry.Status != domain.EntryActive || entry.AccessToken != token ||
		entry.ExpiresAt == nil || !now.Before(*entry.ExpiresAt) {
		return nil, domain.ErrInvalidAccessToken
	}
	return entry, nil
}

// Authorize checks that the session is admitted for every gated event.
// Events without an open queue are not gated.
func (s *AdmissionService) Authorize(ctx context.Context, token, sessionID string, eventIDs []string) error {
	var entry *domain.QueueEntry
	for _, eventID := range eventIDs {
		q, err := s.queues.GetByEvent(ctx, eventID)
		if err != nil {
			if errors.Is(err, domain.ErrQueueNotFound) {
				continue
			}
			return err
		}
		if !q.Gates() {
			continue
		}
		if entry == nil {
			entry, err = s.ValidateAccessToken(ctx, token)
			if err != nil {
				return err
			}
		}
		if entry.QueueID != q.ID || entry.SessionID != sessionID {
			return domain.ErrInvalidAccessToken
		}
	}
	return nil
}

// Position reports where the entry stands and records that the customer
// is still around.
func (s *AdmissionService) Position(ctx context.Context, entryID string) (*domain.PositionInfo, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !entry.IsTerminal() {
		s.touch(ctx, entry)
	}

	info := &domain.PositionInfo{
		EntryID:  entry.ID,
		Position: entry.Position,
		Status:   entry.Status,
	}
	if entry.Status != domain.EntryWaiting && entry.Status != domain.EntryChallenge {
		return info, nil
	}

	ahead, err := s.entries.CountAhead(ctx, entry.QueueID, entry.Position)
	if err != nil {
		return nil, err
	}
	q, err := s.queues.GetByID(ctx, entry.QueueID)
	if err != nil {
		return nil, err
	}
	info.Ahead = ahead
	info.EstimatedWaitSeconds = estimateWait(ahead, q)
	return info, nil
}

// touch refreshes LastSeenAt. Losing a race to another writer is fine;
// the next poll touches again.
func (s *AdmissionService) touch(ctx context.Context, e *domain.QueueEntry) {
	e.LastSeenAt = s.rt.now()
	if err := s.entries.Update(ctx, e); err != nil && !errors.Is(err, domain.ErrVersionConflict) {
		s.rt.Log.Warnw("failed to touch queue entry", "entry_id", e.ID, "error", err)
	}
}

func estimateWait(ahead int, q *domain.Queue) int64 {
	slots := q.ConcurrentActiveLimit
	if slots == 0 {
		slots = 1
	}
	avg := q.AvgServiceSeconds
	if avg <= 0 {
		avg = defaultServiceSeconds
	}
	free := int(q.ConcurrentActiveLimit) - int(q.ActiveCount)
	if free < 0 {
		free = 0
	}
	if ahead < free {
		return 0
	}
	rounds := math.Ceil(float64(ahead-free+1) / float64(slots))
	return int64(rounds * avg)
}

// Tick drives queue schedules: pending queues open at OpenAt, open queues
// complete at CloseAt, and admitting queues get their free slots filled.
func (s *AdmissionService) Tick(ctx context.Context) (TickResult, error) {
	var result TickResult
	queues, err := s.queues.ListOpen(ctx)
	if err != nil {
		return result, fmt.Errorf("list open queues: %w", err)
	}
	for i := range queues {
		id := queues[i].ID
		var opened, closed bool
		err := s.rt.locked(ctx, []string{domain.QueueKey(id)}, func(ctx context.Context) error {
			opened, closed = false, false
			q, err := s.queues.GetByID(ctx, id)
			if err != nil {
				return err
			}
			now := s.rt.now()
			switch {
			case q.Status == domain.QueueCompleted:
				return nil
			case q.Schedule.CloseAt != nil && !now.Before(*q.Schedule.CloseAt):
				q.Status = domain.QueueCompleted
				closed = true
			case q.Status == domain.QueuePending && !now.Before(q.Schedule.OpenAt):
				q.Status = domain.QueueActive
				opened = true
			default:
				return nil
			}
			q.UpdatedAt = now
			return s.queues.Update(ctx, q)
		})
		if err != nil {
			s.rt.Log.Warnw("failed to advance queue schedule", "queue_id", id, "error", err)
			continue
		}
		if opened {
			result.Opened++
			s.rt.Log.Infow("queue opened", "queue_id", id)
		}
		if closed {
			result.Closed++
			s.rt.Log.Infow("queue closed", "queue_id", id)
			continue
		}
		result.Activated += s.fill(ctx, id)
	}
	return result, nil
}

// ExpireSweep times out active sessions past their expiry, waiting
// entries idle too long and challenges left unanswered.
func (s *AdmissionService) ExpireSweep(ctx context.Context) (QueueSweepResult, error) {
	var result QueueSweepResult
	now := s.rt.now()
	q := ports.StaleQuery{
		Now:             now,
		IdleBefore:      now.Add(-s.cfg.IdleTTL),
		ChallengeBefore: now.Add(-s.cfg.ChallengeTTL),
		Limit:           s.cfg.BatchSize,
	}
	stale, err := s.entries.ListStale(ctx, q)
	if err != nil {
		return result, fmt.Errorf("list stale entries: %w", err)
	}

	refill := make(map[string]struct{})
	for i := range stale {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		var freed, expired bool
		_, err := s.withEntry(ctx, stale[i].ID, func(ctx context.Context, e *domain.QueueEntry) error {
			freed, expired = false, false
			if !isStale(e, q) {
				return nil
			}
			var err error
			freed, err = s.end(ctx, e, domain.EntryExpired)
			expired = err == nil
			return err
		})
		if err != nil {
			s.rt.Log.Warnw("failed to expire queue entry", "entry_id", stale[i].ID, "error", err)
			continue
		}
		if expired {
			result.Expired++
		}
		if freed {
			refill[stale[i].QueueID] = struct{}{}
		}
	}
	for queueID := range refill {
		result.Activated += s.fill(ctx, queueID)
	}
	if result.Expired > 0 {
		s.rt.Log.Infow("expired queue entries", "count", result.Expired, "activated", result.Activated)
	}
	return result, nil
}

// isStale re-checks a candidate under the lock; it may have moved on
// since it was listed.
func isStale(e *domain.QueueEntry, q ports.StaleQuery) bool {
	switch e.Status {
	case domain.EntryActive:
		return e.ExpiresAt != nil && !q.Now.Before(*e.ExpiresAt)
	case domain.EntryWaiting:
		return e.LastSeenAt.Before(q.IdleBefore)
	case domain.EntryChallenge:
		return e.LastSeenAt.Before(q.ChallengeBefore)
	}
	return false
}
