// Package memstore is an in-memory repository.Store for service tests. Units of
// work are serialized and roll back by restoring a snapshot.
package memstore

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sitecrew/advance-engine/internal/domain"
	"github.com/sitecrew/advance-engine/internal/repository"
	"github.com/sitecrew/advance-engine/pkg/utils"
)

// Hooks let tests inject failures at specific write points.
type Hooks struct {
	BeforeRepaymentCreate func(r *domain.Repayment) error
	BeforeDeactivate      func(deductionID string) error
}

type state struct {
	advances   map[string]domain.CashAdvance
	repayments []domain.Repayment
	deductions map[string]domain.Deduction
	workers    map[string]domain.Worker
}

func (s state) clone() state {
	out := state{
		advances:   make(map[string]domain.CashAdvance, len(s.advances)),
		repayments: append([]domain.Repayment(nil), s.repayments...),
		deductions: make(map[string]domain.Deduction, len(s.deductions)),
		workers:    make(map[string]domain.Worker, len(s.workers)),
	}
	for k, v := range s.advances {
		out.advances[k] = v
	}
	for k, v := range s.deductions {
		out.deductions[k] = v
	}
	for k, v := range s.workers {
		out.workers[k] = v
	}
	return out
}

type Store struct {
	Hooks Hooks

	txMu sync.Mutex
	mu   sync.RWMutex
	data state
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{data: state{
		advances:   map[string]domain.CashAdvance{},
		deductions: map[string]domain.Deduction{},
		workers:    map[string]domain.Worker{},
	}}
}

// AddWorker seeds a worker record.
func (s *Store) AddWorker(w domain.Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.workers[w.ID] = w
}

// AddDeduction seeds a payroll deduction.
func (s *Store) AddDeduction(d domain.Deduction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.deductions[d.ID] = d
}

// PutAdvance seeds or overwrites an advance as-is.
func (s *Store) PutAdvance(a domain.CashAdvance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.advances[a.ID] = a
}

// Advance returns the stored advance, archived or not.
func (s *Store) Advance(id string) (domain.CashAdvance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.data.advances[id]
	return a, ok
}

// Deduction returns the stored deduction.
func (s *Store) Deduction(id string) (domain.Deduction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.data.deductions[id]
	return d, ok
}

// Repayments returns every stored repayment in insertion order.
func (s *Store) Repayments() []domain.Repayment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Repayment(nil), s.data.repayments...)
}

func (s *Store) Repos() repository.Repos {
	return repository.Repos{
		Advances:   &advanceRepo{s: s},
		Repayments: &repaymentRepo{s: s},
		Deductions: &deductionRepo{s: s},
		Workers:    &workerRepo{s: s},
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(r repository.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(s.Repos()); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) WithinAdvanceTx(ctx context.Context, advanceID string, fn func(r repository.Repos, advance *domain.CashAdvance) error) error {
	return s.WithinTx(ctx, func(r repository.Repos) error {
		advance, err := r.Advances.GetByIDForUpdate(ctx, advanceID)
		if err != nil {
			return err
		}
		return fn(r, advance)
	})
}

type advanceRepo struct{ s *Store }

func (r *advanceRepo) Create(ctx context.Context, a *domain.CashAdvance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.advances[a.ID] = *a
	return nil
}

func (r *advanceRepo) GetByID(ctx context.Context, id string) (*domain.CashAdvance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.data.advances[id]
	if !ok || a.IsArchived {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (r *advanceRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.CashAdvance, error) {
	return r.GetByID(ctx, id)
}

func (r *advanceRepo) Update(ctx context.Context, a *domain.CashAdvance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.advances[a.ID]; !ok {
		return repository.ErrRowNotAffected
	}
	r.s.data.advances[a.ID] = *a
	return nil
}

func (r *advanceRepo) List(ctx context.Context, f domain.AdvanceFilter) ([]*domain.CashAdvance, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	matched := []*domain.CashAdvance{}
	for _, a := range r.s.data.advances {
		a := a
		switch {
		case a.IsArchived,
			f.WorkerID != "" && a.WorkerID != f.WorkerID,
			f.Status != "" && a.Status != f.Status,
			f.From != nil && a.RequestDate.Before(*f.From),
			f.To != nil && a.RequestDate.After(*f.To):
			continue
		}
		matched = append(matched, &a)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].RequestDate.Equal(matched[j].RequestDate) {
			return matched[i].RequestDate.After(matched[j].RequestDate)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *advanceRepo) GetOldestOutstandingForUpdate(ctx context.Context, workerID string) (*domain.CashAdvance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var oldest *domain.CashAdvance
	for _, a := range r.s.data.advances {
		a := a
		if a.WorkerID != workerID || a.IsArchived || !a.IsOutstanding() {
			continue
		}
		if oldest == nil || older(&a, oldest) {
			oldest = &a
		}
	}
	if oldest == nil {
		return nil, sql.ErrNoRows
	}
	return oldest, nil
}

func older(a, b *domain.CashAdvance) bool {
	if !a.RequestDate.Equal(b.RequestDate) {
		return a.RequestDate.Before(b.RequestDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (r *advanceRepo) SumOutstanding(ctx context.Context, workerID string) (decimal.Decimal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	total := decimal.Zero
	for _, a := range r.s.data.advances {
		if a.WorkerID == workerID && !a.IsArchived && a.Status.AcceptsRepayment() {
			total = total.Add(a.Balance)
		}
	}
	return total, nil
}

type repaymentRepo struct{ s *Store }

func (r *repaymentRepo) Create(ctx context.Context, p *domain.Repayment) error {
	if r.s.Hooks.BeforeRepaymentCreate != nil {
		if err := r.s.Hooks.BeforeRepaymentCreate(p); err != nil {
			return err
		}
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.repayments = append(r.s.data.repayments, *p)
	return nil
}

func (r *repaymentRepo) ListByAdvanceID(ctx context.Context, advanceID string) ([]*domain.Repayment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*domain.Repayment{}
	for _, p := range r.s.data.repayments {
		p := p
		if p.AdvanceID == advanceID {
			out = append(out, &p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RepaymentDate.Before(out[j].RepaymentDate)
	})
	return out, nil
}

func (r *repaymentRepo) ExistsForDeduction(ctx context.Context, deductionID string, repaymentDate time.Time) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	day := repaymentDate.Format(utils.DateLayout)
	for _, p := range r.s.data.repayments {
		if p.DeductionID != nil && *p.DeductionID == deductionID && p.RepaymentDate.Format(utils.DateLayout) == day {
			return true, nil
		}
	}
	return false, nil
}

type deductionRepo struct{ s *Store }

func (r *deductionRepo) ListActiveCashAdvance(ctx context.Context) ([]*domain.Deduction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*domain.Deduction{}
	for _, d := range r.s.data.deductions {
		d := d
		if d.DeductionType == domain.DeductionTypeCashAdvance && d.IsActive && d.Status == domain.DeductionStatusApplied {
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WorkerID != out[j].WorkerID {
			return out[i].WorkerID < out[j].WorkerID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *deductionRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Deduction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.data.deductions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &d, nil
}

func (r *deductionRepo) Deactivate(ctx context.Context, id string) error {
	if r.s.Hooks.BeforeDeactivate != nil {
		if err := r.s.Hooks.BeforeDeactivate(id); err != nil {
			return err
		}
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.data.deductions[id]
	if !ok || !d.IsActive {
		return repository.ErrRowNotAffected
	}
	d.IsActive = false
	d.Status = domain.DeductionStatusCancelled
	r.s.data.deductions[id] = d
	return nil
}

type workerRepo struct{ s *Store }

func (r *workerRepo) GetByID(ctx context.Context, id string) (*domain.Worker, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, ok := r.s.data.workers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &w, nil
}
