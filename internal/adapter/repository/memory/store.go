// Package memory is the in-process store. It backs the engine in tests
// and in single-instance deployments.
package memory

type Store struct {
	Pools     *PoolRepository
	Seats     *SeatRepository
	Holds     *HoldRepository
	Queues    *QueueRepository
	Entries   *QueueEntryRepository
	Waitlists *WaitlistRepository
}

func NewStore() *Store {
	return &Store{
		Pools:     NewPoolRepository(),
		Seats:     NewSeatRepository(),
		Holds:     NewHoldRepository(),
		Queues:    NewQueueRepository(),
		Entries:   NewQueueEntryRepository(),
		Waitlists: NewWaitlistRepository(),
	}
}
