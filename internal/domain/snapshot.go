package domain

type Snapshot struct {
	PoolID      int64
	SlotID      int64
	CategoryKey string
	UnitTracked bool
	Total       int
	Available   int
	Held        int
	Sold        int
	Version     int64
}

type SlotSnapshot struct {
	Slot      TimeSlot
	Total     int
	Available int
	Held      int
	Sold      int
	Pools     []Snapshot
}
