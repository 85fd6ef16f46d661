// Package memory хранилище в памяти с той же транзакционной семантикой, что и PostgreSQL:
// транзакции выполняются по одной, изменения видны только после успешного commit.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/tuition_scheduler/internal/errs"
	"github.com/Freeeeeet/tuition_scheduler/internal/model"
	"github.com/Freeeeeet/tuition_scheduler/internal/store"
)

type state struct {
	nextID       int64
	users        map[int64]*model.User
	slots        map[int64]*model.TimeSlot
	availability map[int64]*model.WeeklyAvailabilityBlock
	patterns     map[int64]*model.RecurringBookingPattern
	payments     map[int64]*model.Payment
}

func newState() *state {
	return &state{
		users:        make(map[int64]*model.User),
		slots:        make(map[int64]*model.TimeSlot),
		availability: make(map[int64]*model.WeeklyAvailabilityBlock),
		patterns:     make(map[int64]*model.RecurringBookingPattern),
		payments:     make(map[int64]*model.Payment),
	}
}

func cloneMap[T any](src map[int64]*T) map[int64]*T {
	dst := make(map[int64]*T, len(src))
	for id, v := range src {
		c := *v
		dst[id] = &c
	}
	return dst
}

func (s *state) clone() *state {
	return &state{
		nextID:       s.nextID,
		users:        cloneMap(s.users),
		slots:        cloneMap(s.slots),
		availability: cloneMap(s.availability),
		patterns:     cloneMap(s.patterns),
		payments:     cloneMap(s.payments),
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Store хранилище в памяти
type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time

	commitFailures []error
	commits        int
}

func NewStore() *Store {
	return &Store{state: newState(), now: time.Now}
}

// FailNextCommits заставляет следующие commit-ы вернуть переданные ошибки по порядку
func (s *Store) FailNextCommits(errors ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitFailures = append(s.commitFailures, errors...)
}

// Commits количество успешных commit-ов
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// InTx выполняет fn над копией состояния и применяет её при успехе
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return errs.Infrastructure("storage operation timed out").Wrap(err)
	}

	work := s.state.clone()
	if err := fn(ctx, &tx{st: work, now: s.now}); err != nil {
		return err
	}

	if len(s.commitFailures) > 0 {
		err := s.commitFailures[0]
		s.commitFailures = s.commitFailures[1:]
		return err
	}

	s.state = work
	s.commits++
	return nil
}

// AddUser добавляет пользователя вне транзакций сервиса
func (s *Store) AddUser(user model.User) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.ID = s.state.id()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	s.state.users[user.ID] = &user

	out := user
	return &out
}

// AllSlots снимок всех слотов, упорядоченный по ID
func (s *Store) AllSlots() []model.TimeSlot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.TimeSlot, 0, len(s.state.slots))
	for _, slot := range s.state.slots {
		out = append(out, *slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllPatterns снимок всех постоянных занятий, упорядоченный по ID
func (s *Store) AllPatterns() []model.RecurringBookingPattern {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.RecurringBookingPattern, 0, len(s.state.patterns))
	for _, p := range s.state.patterns {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllPayments снимок всех оплат
func (s *Store) AllPayments() []model.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Payment, 0, len(s.state.payments))
	for _, p := range s.state.payments {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) Users() store.UserRepository                { return users{t} }
func (t *tx) Slots() store.SlotRepository                { return slots{t} }
func (t *tx) Availability() store.AvailabilityRepository { return availability{t} }
func (t *tx) Patterns() store.PatternRepository          { return patterns{t} }
func (t *tx) Payments() store.PaymentRepository          { return payments{t} }

func copyOf[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

type users struct{ t *tx }

func (r users) Create(_ context.Context, user *model.User) error {
	user.ID = r.t.st.id()
	user.CreatedAt = r.t.now()
	r.t.st.users[user.ID] = copyOf(user)
	return nil
}

func (r users) GetByID(_ context.Context, id int64) (*model.User, error) {
	return copyOf(r.t.st.users[id]), nil
}

func (r users) SetActive(_ context.Context, id int64, active bool) error {
	user, ok := r.t.st.users[id]
	if !ok {
		return errs.NotFound("user not found").Arg("user_id", id)
	}
	user.IsActive = active
	return nil
}

type slots struct{ t *tx }

func (r slots) liveWindow(tutorID int64, date time.Time, start, end int, except int64) *model.TimeSlot {
	for _, s := range r.t.st.slots {
		if s.ID != except && s.TutorID == tutorID && s.Date.Equal(date) &&
			s.StartMinutes == start && s.EndMinutes == end && s.Status != model.SlotStatusCancelled {
			return s
		}
	}
	return nil
}

func (r slots) Create(_ context.Context, slot *model.TimeSlot) error {
	if r.liveWindow(slot.TutorID, slot.Date, slot.StartMinutes, slot.EndMinutes, 0) != nil {
		return errs.Conflict("slot window already exists").
			Arg("tutor_id", slot.TutorID).
			Arg("date", slot.DateString()).
			Arg("start", slot.StartTime)
	}
	now := r.t.now()
	slot.ID = r.t.st.id()
	slot.CreatedAt = now
	slot.UpdatedAt = now
	r.t.st.slots[slot.ID] = copyOf(slot)
	return nil
}

func (r slots) GetByID(_ context.Context, id int64) (*model.TimeSlot, error) {
	return copyOf(r.t.st.slots[id]), nil
}

func (r slots) Update(_ context.Context, slot *model.TimeSlot) error {
	stored, ok := r.t.st.slots[slot.ID]
	if !ok {
		return errs.NotFound("slot not found").Arg("slot_id", slot.ID)
	}
	if slot.Status != model.SlotStatusCancelled &&
		r.liveWindow(stored.TutorID, stored.Date, stored.StartMinutes, stored.EndMinutes, slot.ID) != nil {
		return errs.Conflict("slot window already exists").Arg("slot_id", slot.ID)
	}

	stored.StudentID = copyOf(slot.StudentID)
	stored.Status = slot.Status
	stored.Attendance = slot.Attendance
	stored.PaymentID = copyOf(slot.PaymentID)
	stored.RecurringPatternID = copyOf(slot.RecurringPatternID)
	stored.CancelledBy = copyOf(slot.CancelledBy)
	stored.CancelledAt = copyOf(slot.CancelledAt)
	stored.UpdatedAt = r.t.now()
	slot.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r slots) FindByWindow(_ context.Context, tutorID int64, date time.Time, startMinutes, endMinutes int) (*model.TimeSlot, error) {
	return copyOf(r.liveWindow(tutorID, date, startMinutes, endMinutes, 0)), nil
}

func (r slots) FindOverlapping(_ context.Context, q store.OverlapQuery) ([]*model.TimeSlot, error) {
	return r.filter(func(s *model.TimeSlot) bool {
		if !s.Status.Blocking() || !s.Date.Equal(q.Date) {
			return false
		}
		if q.ExcludeID != nil && s.ID == *q.ExcludeID {
			return false
		}
		if !(s.StartMinutes < q.EndMinutes && q.StartMinutes < s.EndMinutes) {
			return false
		}
		return s.TutorID == q.TutorID || (q.StudentID != nil && s.BelongsToStudent(*q.StudentID))
	}), nil
}

func inRange(d, from, to time.Time) bool {
	return !d.Before(from) && !d.After(to)
}

func (r slots) ListByTutor(_ context.Context, tutorID int64, from, to time.Time) ([]*model.TimeSlot, error) {
	return r.filter(func(s *model.TimeSlot) bool {
		return s.TutorID == tutorID && inRange(s.Date, from, to)
	}), nil
}

func (r slots) ListByStudent(_ context.Context, studentID int64, from, to time.Time) ([]*model.TimeSlot, error) {
	return r.filter(func(s *model.TimeSlot) bool {
		return s.BelongsToStudent(studentID) && inRange(s.Date, from, to)
	}), nil
}

func (r slots) ListByPattern(_ context.Context, patternID int64) ([]*model.TimeSlot, error) {
	return r.filter(func(s *model.TimeSlot) bool {
		return s.RecurringPatternID != nil && *s.RecurringPatternID == patternID
	}), nil
}

// Lock ничего не делает: транзакции и так выполняются по одной
func (r slots) Lock(context.Context, ...string) error { return nil }

func (r slots) filter(keep func(*model.TimeSlot) bool) []*model.TimeSlot {
	var out []*model.TimeSlot
	for _, s := range r.t.st.slots {
		if keep(s) {
			out = append(out, copyOf(s))
		}
	}
	slices.SortFunc(out, func(a, b *model.TimeSlot) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if a.StartMinutes != b.StartMinutes {
			return a.StartMinutes - b.StartMinutes
		}
		return int(a.ID - b.ID)
	})
	return out
}

type availability struct{ t *tx }

func (r availability) DeleteByOwner(_ context.Context, owner model.Owner) (int64, error) {
	var n int64
	for id, b := range r.t.st.availability {
		if b.Owner == owner {
			delete(r.t.st.availability, id)
			n++
		}
	}
	return n, nil
}

func (r availability) CreateMany(_ context.Context, blocks []*model.WeeklyAvailabilityBlock) error {
	for _, block := range blocks {
		for _, existing := range r.t.st.availability {
			if existing.Owner == block.Owner && existing.Weekday == block.Weekday &&
				existing.StartMinutes == block.StartMinutes && existing.EndMinutes == block.EndMinutes {
				return errs.Conflict("duplicate availability block").
					Arg("owner", block.Owner.String()).
					Arg("weekday", block.Weekday.String()).
					Arg("start", block.StartTime)
			}
		}
		block.ID = r.t.st.id()
		block.CreatedAt = r.t.now()
		r.t.st.availability[block.ID] = copyOf(block)
	}
	return nil
}

func (r availability) ListByOwner(_ context.Context, owner model.Owner) ([]*model.WeeklyAvailabilityBlock, error) {
	var out []*model.WeeklyAvailabilityBlock
	for _, b := range r.t.st.availability {
		if b.Owner == owner {
			out = append(out, copyOf(b))
		}
	}
	slices.SortFunc(out, func(a, b *model.WeeklyAvailabilityBlock) int {
		if a.Weekday != b.Weekday {
			return int(a.Weekday) - int(b.Weekday)
		}
		return a.StartMinutes - b.StartMinutes
	})
	return out, nil
}

type patterns struct{ t *tx }

func (r patterns) Create(_ context.Context, p *model.RecurringBookingPattern) error {
	now := r.t.now()
	p.ID = r.t.st.id()
	p.CreatedAt = now
	p.UpdatedAt = now
	r.t.st.patterns[p.ID] = copyOf(p)
	return nil
}

func (r patterns) GetByID(_ context.Context, id int64) (*model.RecurringBookingPattern, error) {
	return copyOf(r.t.st.patterns[id]), nil
}

func (r patterns) Update(_ context.Context, p *model.RecurringBookingPattern) error {
	stored, ok := r.t.st.patterns[p.ID]
	if !ok {
		return errs.NotFound("recurring pattern not found").Arg("pattern_id", p.ID)
	}
	stored.Status = p.Status
	stored.EndDate = copyOf(p.EndDate)
	stored.LastExtendedOn = copyOf(p.LastExtendedOn)
	stored.UpdatedAt = r.t.now()
	p.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r patterns) list(keep func(*model.RecurringBookingPattern) bool) []*model.RecurringBookingPattern {
	var out []*model.RecurringBookingPattern
	for _, p := range r.t.st.patterns {
		if keep(p) {
			out = append(out, copyOf(p))
		}
	}
	slices.SortFunc(out, func(a, b *model.RecurringBookingPattern) int { return int(a.ID - b.ID) })
	return out
}

func (r patterns) ListActive(context.Context) ([]*model.RecurringBookingPattern, error) {
	return r.list(func(p *model.RecurringBookingPattern) bool { return p.IsActive() }), nil
}

func (r patterns) ListByStudent(_ context.Context, studentID int64) ([]*model.RecurringBookingPattern, error) {
	return r.list(func(p *model.RecurringBookingPattern) bool { return p.StudentID == studentID }), nil
}

type payments struct{ t *tx }

func (r payments) Create(_ context.Context, p *model.Payment) error {
	for _, existing := range r.t.st.payments {
		if existing.OrderID == p.OrderID {
			return errs.Conflict("payment order already recorded").Arg("order_id", p.OrderID)
		}
	}
	p.ID = r.t.st.id()
	p.CreatedAt = r.t.now()
	r.t.st.payments[p.ID] = copyOf(p)
	return nil
}

func (r payments) GetByID(_ context.Context, id int64) (*model.Payment, error) {
	return copyOf(r.t.st.payments[id]), nil
}

func (r payments) GetByOrderID(_ context.Context, orderID string) (*model.Payment, error) {
	for _, p := range r.t.st.payments {
		if p.OrderID == orderID {
			return copyOf(p), nil
		}
	}
	return nil, nil
}

var _ store.Store = (*Store)(nil)
