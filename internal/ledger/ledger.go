// Package ledger tracks generation spend against a fixed monetary budget.
//
// A Ledger is safe for concurrent use. CanAfford and Charge are separate calls,
// so runs that charge after a remote call returns can jointly overshoot the
// total by at most one job per concurrent run. TryCharge checks and charges
// as one step when nothing has to happen in between.
package ledger

import (
	"sync"

	"github.com/bobarin/beatreel/internal/metrics"
	"github.com/bobarin/beatreel/internal/models"
)

// DefaultUnitCost applies to kinds missing from the cost table.
const DefaultUnitCost = 0.10

// DefaultCosts returns the per-job pricing of the generation service in dollars.
// One service credit is $0.0625: image 1.5 credits, image-to-video 4, text-to-video 8.
func DefaultCosts() map[models.JobKind]float64 {
	return map[models.JobKind]float64{
		models.JobKindImage:        0.09,
		models.JobKindImageToVideo: 0.25,
		models.JobKindTextToVideo:  0.50,
	}
}

type Ledger struct {
	mu          sync.Mutex
	total       float64
	used        float64
	costs       map[models.JobKind]float64
	defaultCost float64
}

// New creates a ledger with nothing spent. A nil cost table uses DefaultCosts
// and a non-positive default cost uses DefaultUnitCost.
func New(totalBudget float64, costs map[models.JobKind]float64, defaultCost float64) *Ledger {
	if costs == nil {
		costs = DefaultCosts()
	}
	if defaultCost <= 0 {
		defaultCost = DefaultUnitCost
	}

	table := make(map[models.JobKind]float64, len(costs))
	for k, v := range costs {
		table[k] = v
	}

	l := &Ledger{
		total:       totalBudget,
		costs:       table,
		defaultCost: defaultCost,
	}
	metrics.SetBudget(0, totalBudget)
	return l
}

// Cost returns the unit cost of kind.
func (l *Ledger) Cost(kind models.JobKind) float64 {
	if c, ok := l.costs[kind]; ok {
		return c
	}
	return l.defaultCost
}

// CanAfford reports whether count operations of kind fit in the remaining budget.
func (l *Ledger) CanAfford(kind models.JobKind, count int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fits(l.Cost(kind) * float64(count))
}

// CanAffordAll reports whether one operation of each kind fits together.
func (l *Ledger) CanAffordAll(kinds ...models.JobKind) bool {
	var amount float64
	for _, k := range kinds {
		amount += l.Cost(k)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fits(amount)
}

// Charge records count operations of kind and returns the new cumulative spend.
// It does not consult the budget: callers must gate with CanAfford first, or
// use TryCharge. An ungated Charge can push spend past the total.
func (l *Ledger) Charge(kind models.JobKind, count int) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.add(l.Cost(kind) * float64(count))
}

// TryCharge charges count operations of kind only if they fit, as one atomic step.
// It returns the cumulative spend and whether the charge was applied.
func (l *Ledger) TryCharge(kind models.JobKind, count int) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	amount := l.Cost(kind) * float64(count)
	if !l.fits(amount) {
		metrics.RecordBudgetRejection(string(kind))
		return l.used, false
	}
	return l.add(amount), true
}

func (l *Ledger) Used() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used
}

func (l *Ledger) Total() float64 {
	return l.total
}

func (l *Ledger) RemainingBudget() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total - l.used
}

// UsagePercentage returns spend as a percentage of the total budget.
func (l *Ledger) UsagePercentage() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.total <= 0 {
		return 0
	}
	return l.used / l.total * 100
}

// Snapshot is a consistent view of the ledger for reporting.
type Snapshot struct {
	Total     float64
	Used      float64
	Remaining float64
	Percent   float64
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Snapshot{Total: l.total, Used: l.used, Remaining: l.total - l.used}
	if l.total > 0 {
		s.Percent = l.used / l.total * 100
	}
	return s
}

// fits and add expect l.mu to be held. Both evaluate used+amount the same
// way so a failed gate always predicts an overspending charge.
func (l *Ledger) fits(amount float64) bool {
	return l.used+amount <= l.total
}

func (l *Ledger) add(amount float64) float64 {
	if amount > 0 {
		l.used += amount
	}
	metrics.SetBudget(l.used, l.total-l.used)
	return l.used
}
