package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tuition_scheduler/internal/errs"
	"github.com/Freeeeeet/tuition_scheduler/internal/model"
	"github.com/Freeeeeet/tuition_scheduler/internal/notify"
	"github.com/Freeeeeet/tuition_scheduler/internal/payment"
	"github.com/Freeeeeet/tuition_scheduler/internal/repository/memory"
	"github.com/Freeeeeet/tuition_scheduler/internal/store"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

type fakeGateway struct {
	valid  bool
	orders []payment.OrderRequest
	err    error
}

func (g *fakeGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (payment.Order, error) {
	g.orders = append(g.orders, req)
	if g.err != nil {
		return payment.Order{}, g.err
	}
	return payment.Order{OrderID: req.OrderID, Token: "token-" + req.OrderID}, nil
}

func (g *fakeGateway) VerifySignature(payment.Notification) bool { return g.valid }

type testEnv struct {
	store *memory.Store
	rec   *notify.Recorder
	gw    *fakeGateway
	svc   *BookingService
	avail *AvailabilityService

	mu  sync.Mutex
	now time.Time

	tutor    *model.User
	tutor2   *model.User
	student  *model.User
	student2 *model.User
	admin    model.Actor
}

// 2024-01-01 - понедельник
var startOfTest = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := memory.NewStore()
	e := &testEnv{
		store: st,
		rec:   &notify.Recorder{},
		gw:    &fakeGateway{valid: true},
		now:   startOfTest,
	}

	from, to := day(2024, 1, 1), day(2024, 6, 30)
	e.tutor = st.AddUser(model.User{Role: model.RoleTutor, FirstName: "Tanya", LastName: "Ivanova", IsActive: true, TelegramChatID: ptr(int64(1001))})
	e.tutor2 = st.AddUser(model.User{Role: model.RoleTutor, FirstName: "Oleg", IsActive: true})
	e.student = st.AddUser(model.User{Role: model.RoleStudent, FirstName: "Sam", IsActive: true, EnrollmentFrom: &from, EnrollmentTo: &to})
	e.student2 = st.AddUser(model.User{Role: model.RoleStudent, FirstName: "Kate", IsActive: true, EnrollmentFrom: &from, EnrollmentTo: &to})
	admin := st.AddUser(model.User{Role: model.RoleAdmin, FirstName: "Root", IsActive: true})
	e.admin = model.Actor{UserID: admin.ID, Role: model.RoleAdmin}

	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	e.svc = NewBookingService(st, e.rec, e.gw, Options{
		Retry: policy,
		Now:   e.clock,
	}, zap.NewNop())
	e.avail = NewAvailabilityService(st, policy, zap.NewNop())

	t.Cleanup(e.svc.WaitNotifications)
	return e
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) setNow(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = t
}

func actorOf(u *model.User) model.Actor {
	return model.Actor{UserID: u.ID, Role: u.Role}
}

// bookedSlot создаёт забронированный слот
func (e *testEnv) bookedSlot(t *testing.T, tutor, student *model.User, date, start, end string) int64 {
	t.Helper()
	resp, err := e.svc.CreateSlots(context.Background(), actorOf(tutor), CreateSlotsRequest{Slots: []CreateSlotRequest{
		{TutorID: tutor.ID, Date: date, StartTime: start, EndTime: end, StudentID: &student.ID},
	}})
	require.NoError(t, err)
	require.Len(t, resp.CreatedIDs, 1)
	return resp.CreatedIDs[0]
}

// openSlot создаёт свободный слот
func (e *testEnv) openSlot(t *testing.T, tutor *model.User, date, start, end string) int64 {
	t.Helper()
	resp, err := e.svc.CreateSlots(context.Background(), actorOf(tutor), CreateSlotsRequest{Slots: []CreateSlotRequest{
		{TutorID: tutor.ID, Date: date, StartTime: start, EndTime: end},
	}})
	require.NoError(t, err)
	require.Len(t, resp.CreatedIDs, 1)
	return resp.CreatedIDs[0]
}

func (e *testEnv) slot(t *testing.T, id int64) *model.TimeSlot {
	t.Helper()
	for _, s := range e.store.AllSlots() {
		if s.ID == id {
			return &s
		}
	}
	t.Fatalf("slot %d not found", id)
	return nil
}

func (e *testEnv) setActive(t *testing.T, userID int64, active bool) {
	t.Helper()
	require.NoError(t, e.store.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Users().SetActive(ctx, userID, active)
	}))
}

func requireKind(t *testing.T, err error, kind errs.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, errs.KindOf(err), "unexpected error: %v", err)
}
