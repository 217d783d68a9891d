package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Job is a pending finishing job synced from the ERP.
type Job struct {
	ID         string     `json:"id" yaml:"id"`
	Process    string     `json:"process" yaml:"process"`
	OrderID    string     `json:"order_id" yaml:"order_id"`
	Position   string     `json:"position" yaml:"position"`
	MaterialID string     `json:"material_id" yaml:"material_id"`
	Quantity   int        `json:"quantity" yaml:"quantity"`
	Priority   int        `json:"priority" yaml:"priority"` // lower is more urgent
	IsTest     bool       `json:"is_test" yaml:"is_test"`
	StartBy    *time.Time `json:"start_by,omitempty" yaml:"start_by,omitempty"`
	DueDate    *time.Time `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	Notes      string     `json:"notes,omitempty" yaml:"notes,omitempty"`
	Lots       []string   `json:"lots,omitempty" yaml:"lots,omitempty"`
}

// PinKey identifies the order position a pin applies to.
func (j Job) PinKey() PinKey {
	return PinKey{Process: j.Process, OrderID: j.OrderID, Position: j.Position, IsTest: j.IsTest}
}

// PinKey is the identity of pinned work.
type PinKey struct {
	Process  string `json:"process" yaml:"process"`
	OrderID  string `json:"order_id" yaml:"order_id"`
	Position string `json:"position" yaml:"position"`
	IsTest   bool   `json:"is_test" yaml:"is_test"`
}

func (k PinKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%t", k.Process, k.OrderID, k.Position, k.IsTest)
}

// Validate checks that the key carries an order and position.
func (k PinKey) Validate() error {
	if k.Process == "" || k.OrderID == "" || k.Position == "" {
		return fmt.Errorf("incomplete pin key %s", k)
	}
	return nil
}

// PinnedSplit is an operator-frozen share of an order position on a line.
// A Quantity of 0 means the split takes whatever remains of the job.
type PinnedSplit struct {
	Key       PinKey    `json:"key"`
	SplitID   int       `json:"split_id"`
	LineID    string    `json:"line_id"`
	Quantity  int       `json:"quantity"`
	Lots      []string  `json:"lots,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// Auto reports whether the split quantity is resolved at read time.
func (s PinnedSplit) Auto() bool { return s.Quantity == 0 }

// PinnedRow is a pinned split joined with its job, quantity resolved.
type PinnedRow struct {
	Job      Job    `json:"job"`
	LineID   string `json:"line_id"`
	SplitID  int    `json:"split_id"`
	Quantity int    `json:"quantity"`
}

// IsTestLot reports whether a lot identifier denotes a test run. Production
// lots are purely numeric; any letter marks a test lot.
func IsTestLot(lot string) bool {
	for _, r := range lot {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// ErrInvalidCorrelativo is returned for malformed serial ranges.
var ErrInvalidCorrelativo = errors.New("invalid correlativo range")

// CorrelativoRange is an inclusive range of lot serial numbers.
type CorrelativoRange struct {
	From int `json:"from" yaml:"from"`
	To   int `json:"to" yaml:"to"`
}

// Validate rejects empty, negative or inverted ranges.
func (c CorrelativoRange) Validate() error {
	if c.From <= 0 || c.To <= 0 {
		return fmt.Errorf("%w: bounds must be positive (%d-%d)", ErrInvalidCorrelativo, c.From, c.To)
	}
	if c.From > c.To {
		return fmt.Errorf("%w: from %d after to %d", ErrInvalidCorrelativo, c.From, c.To)
	}
	return nil
}

// Len is the number of units in the range.
func (c CorrelativoRange) Len() int {
	if c.Validate() != nil {
		return 0
	}
	return c.To - c.From + 1
}

// Lots expands the range into lot identifiers.
func (c CorrelativoRange) Lots() ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	out := make([]string, 0, c.Len())
	for n := c.From; n <= c.To; n++ {
		out = append(out, strconv.Itoa(n))
	}
	return out, nil
}

// ParseCorrelativo parses "from-to" or a single serial.
func ParseCorrelativo(s string) (CorrelativoRange, error) {
	from, to, found := strings.Cut(strings.TrimSpace(s), "-")
	a, err := strconv.Atoi(from)
	if err != nil {
		return CorrelativoRange{}, fmt.Errorf("%w: %q", ErrInvalidCorrelativo, s)
	}
	b := a
	if found {
		if b, err = strconv.Atoi(to); err != nil {
			return CorrelativoRange{}, fmt.Errorf("%w: %q", ErrInvalidCorrelativo, s)
		}
	}
	r := CorrelativoRange{From: a, To: b}
	return r, r.Validate()
}
