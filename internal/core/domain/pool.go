package domain

import "time"

// CapacityPool tracks a counted unit of inventory, either a GA tier or a
// venue section-tier. Sold+Blocked+Held never exceeds TotalCapacity.
type CapacityPool struct {
	ID            string
	EventID       string
	UnitID        string
	TotalCapacity uint
	Sold          uint
	Blocked       uint
	Held          uint
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (p *CapacityPool) Available() uint {
	used := p.Sold + p.Blocked + p.Held
	if used >= p.TotalCapacity {
		return 0
	}
	return p.TotalCapacity - used
}

// Floor is the smallest capacity the pool can be adjusted down to.
func (p *CapacityPool) Floor() uint {
	return p.Sold + p.Blocked + p.Held
}

func (p *CapacityPool) Consistent() bool {
	return p.Sold+p.Blocked+p.Held <= p.TotalCapacity
}

func (p *CapacityPool) Snapshot() PoolAvailability {
	return PoolAvailability{
		PoolID:        p.ID,
		EventID:       p.EventID,
		UnitID:        p.UnitID,
		TotalCapacity: p.TotalCapacity,
		Sold:          p.Sold,
		Blocked:       p.Blocked,
		Held:          p.Held,
		Available:     p.Available(),
	}
}

type PoolAvailability struct {
	PoolID        string `json:"pool_id"`
	EventID       string `json:"event_id"`
	UnitID        string `json:"unit_id"`
	TotalCapacity uint   `json:"total_capacity"`
	Sold          uint   `json:"sold"`
	Blocked       uint   `json:"blocked"`
	Held          uint   `json:"held"`
	Available     uint   `json:"available"`
}

// CapacityBlock is an admin-withheld quantity that can be unblocked later.
type CapacityBlock struct {
	ID         string
	PoolID     string
	Quantity   uint
	Reason     string
	Active     bool
	CreatedAt  time.Time
	ReleasedAt *time.Time
	Version    int
}

type CapacityAdjustment struct {
	ID        string
	PoolID    string
	Delta     int
	Reason    string
	CreatedAt time.Time
}

// CapacityFreed is published whenever quantity returns to a unit's
// available count.
type CapacityFreed struct {
	EventID  string `json:"event_id"`
	UnitID   string `json:"unit_id"`
	Quantity uint   `json:"quantity"`
}
