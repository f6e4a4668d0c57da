package state

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

type Position struct {
	Qty      int
	AvgEntry float64
}

type OpenOrder struct {
	ClientOrderID string
	OrderID       string
	Status        string
}

// Protection records the levels attached to the most recent entry.
type Protection struct {
	Strategy   string
	Entry      float64
	StopPrice  float64
	TakeProfit float64 `json:",omitempty"`
	OrderClass string
}

type Snapshot struct {
	Position      Position
	OpenOrders    map[string]OpenOrder
	LastTradeTime time.Time
	LastBarTime   time.Time
	LastSignal    string
	Protection    *Protection `json:",omitempty"`
}

type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

func NewStore() *Store {
	return &Store{
		snapshot: Snapshot{
			OpenOrders: map[string]OpenOrder{},
		},
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snapshot
	snap.OpenOrders = make(map[string]OpenOrder, len(s.snapshot.OpenOrders))
	for k, v := range s.snapshot.OpenOrders {
		snap.OpenOrders[k] = v
	}
	if s.snapshot.Protection != nil {
		p := *s.snapshot.Protection
		snap.Protection = &p
	}
	return snap
}

func (s *Store) UpdatePosition(position Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Position = position
	if position.Qty == 0 {
		s.snapshot.Protection = nil
	}
}

func (s *Store) SetOpenOrders(orders map[string]OpenOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.OpenOrders = orders
}

// AddOpenOrder records a freshly submitted order until the next reconcile.
func (s *Store) AddOpenOrder(order OpenOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.OpenOrders[order.ClientOrderID] = order
}

func (s *Store) SetLastTradeTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastTradeTime = t
}

func (s *Store) SetLastBarTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastBarTime = t
}

func (s *Store) SetLastSignal(signal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastSignal = signal
}

func (s *Store) SetProtection(p Protection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Protection = &p
}

func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := json.MarshalIndent(s.snapshot, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}
	if snapshot.OpenOrders == nil {
		snapshot.OpenOrders = map[string]OpenOrder{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
	return nil
}
