package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront_back_end/internal/apperr"
	"storefront_back_end/internal/models"
	"storefront_back_end/internal/store/memory"
)

type recordingNotifier struct {
	mu      sync.Mutex
	placed  []models.Order
	changes []models.OrderStatus
}

func (n *recordingNotifier) OrderPlaced(_ context.Context, o models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.placed = append(n.placed, o)
}

func (n *recordingNotifier) OrderStatusChanged(_ context.Context, o models.Order, _ models.OrderStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, o.Status)
}

type counter struct{ n int }

func (c *counter) OrderCreated() { c.n++ }

type fixture struct {
	svc      *Service
	store    *memory.Store
	notifier *recordingNotifier
	created  *counter
	user     *models.User
	x, y     *models.Product
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()

	user := &models.User{ID: "u1", Username: "alice", Roles: models.Roles{models.RoleUser}, Active: true}
	require.NoError(t, st.CreateUser(ctx, user))
	x := &models.Product{ID: "px", Name: "X", Price: 10, Available: true}
	y := &models.Product{ID: "py", Name: "Y", Price: 5, Available: true}
	require.NoError(t, st.CreateProduct(ctx, x))
	require.NoError(t, st.CreateProduct(ctx, y))

	n := &recordingNotifier{}
	c := &counter{}
	return &fixture{
		svc:      NewService(st, n, c, opts, nil),
		store:    st,
		notifier: n,
		created:  c,
		user:     user,
		x:        x,
		y:        y,
	}
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, f.user.ID, []models.LineItem{
		{ProductID: f.x.ID, Quantity: 1},
		{ProductID: f.y.ID, Quantity: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, 15.0, order.TotalPrice)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.False(t, order.Completed)
	assert.Len(t, order.Items, 2)
	assert.Equal(t, int64(100), order.Ticket)
	assert.Equal(t, "X", order.Items[0].Name)
	assert.Len(t, f.notifier.placed, 1)
	assert.Equal(t, 1, f.created.n)

	second, err := f.svc.CreateOrder(ctx, f.user.ID, []models.LineItem{{ProductID: f.x.ID, Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(101), second.Ticket)
}

func TestCreateOrderMergesDuplicateLines(t *testing.T) {
	f := newFixture(t, Options{})

	order, err := f.svc.CreateOrder(context.Background(), f.user.ID, []models.LineItem{
		{ProductID: f.x.ID, Quantity: 1},
		{ProductID: f.y.ID, Quantity: 2},
		{ProductID: f.x.ID, Quantity: 3},
	})
	require.NoError(t, err)
	require.Len(t, order.Items, 2)
	assert.Equal(t, 4, order.Items[0].Quantity)
	assert.Equal(t, 50.0, order.TotalPrice)
}

func TestCreateOrderPriceIsCaptured(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, f.user.ID, []models.LineItem{{ProductID: f.x.ID, Quantity: 2}})
	require.NoError(t, err)

	f.x.Price = 99
	require.NoError(t, f.store.UpdateProduct(ctx, f.x))

	stored, err := f.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 20.0, stored.TotalPrice)
	assert.Equal(t, 10.0, stored.Items[0].Price)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, f.user.ID, nil)
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput))

	_, err = f.svc.CreateOrder(ctx, f.user.ID, []models.LineItem{{ProductID: f.x.ID, Quantity: 0}})
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput))

	// les lignes sont contrôlées avant l'utilisateur
	_, err = f.svc.CreateOrder(ctx, "ghost", []models.LineItem{{ProductID: f.x.ID, Quantity: -1}})
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput))

	_, err = f.svc.CreateOrder(ctx, "ghost", []models.LineItem{{ProductID: f.x.ID, Quantity: 1}})
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestCreateOrderUnknownProductPersistsNothing(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, f.user.ID, []models.LineItem{
		{ProductID: f.x.ID, Quantity: 1},
		{ProductID: "missing", Quantity: 1},
	})
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	all, err := f.store.ListOrders(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.notifier.placed)
	assert.Zero(t, f.created.n)

	// le compteur n'a pas avancé
	order, err := f.svc.CreateOrder(ctx, f.user.ID, []models.LineItem{{ProductID: f.x.ID, Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(100), order.Ticket)
}

func TestSetStatusIdempotent(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, f.user.ID, []models.LineItem{{ProductID: f.x.ID, Quantity: 1}})
	require.NoError(t, err)

	for _, status := range []string{"processing", "shipped", "completed"} {
		_, err := f.svc.SetStatus(ctx, order.ID, status)
		require.NoError(t, err, status)
	}
	again, err := f.svc.SetStatus(ctx, order.ID, "completed")
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, again.Status)
	assert.True(t, again.Completed)
	assert.Equal(t, []models.OrderStatus{
		models.StatusProcessing, models.StatusShipped, models.StatusCompleted,
	}, f.notifier.changes)
}

func TestSetStatusTransitions(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, f.user.ID, []models.LineItem{{ProductID: f.x.ID, Quantity: 1}})
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, order.ID, "shipped")
	assert.True(t, apperr.IsKind(err, apperr.Conflict))

	_, err = f.svc.SetStatus(ctx, order.ID, "lost")
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput))

	_, err = f.svc.SetStatus(ctx, "missing", "processing")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	cancelled, err := f.svc.SetStatus(ctx, order.ID, "Cancelled")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	_, err = f.svc.SetStatus(ctx, order.ID, "pending")
	assert.True(t, apperr.IsKind(err, apperr.Conflict))
}

func TestSetStatusFreeTransitions(t *testing.T) {
	f := newFixture(t, Options{FreeTransitions: true})
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, f.user.ID, []models.LineItem{{ProductID: f.x.ID, Quantity: 1}})
	require.NoError(t, err)

	done, err := f.svc.SetStatus(ctx, order.ID, "completed")
	require.NoError(t, err)
	assert.True(t, done.Completed)

	back, err := f.svc.SetStatus(ctx, order.ID, "pending")
	require.NoError(t, err)
	assert.False(t, back.Completed)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.StatusPending, models.StatusProcessing))
	assert.True(t, CanTransition(models.StatusShipped, models.StatusCancelled))
	assert.True(t, CanTransition(models.StatusCompleted, models.StatusCompleted))
	assert.False(t, CanTransition(models.StatusPending, models.StatusCompleted))
	assert.False(t, CanTransition(models.StatusCompleted, models.StatusCancelled))
	assert.False(t, CanTransition(models.StatusCancelled, models.StatusPending))
}

func TestUpdateOrder(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, f.user.ID, []models.LineItem{{ProductID: f.x.ID, Quantity: 1}})
	require.NoError(t, err)

	updated, err := f.svc.UpdateOrder(ctx, order.ID, UpdatePatch{
		UserID: f.user.ID,
		Items:  []models.LineItem{{ProductID: f.y.ID, Quantity: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, 15.0, updated.TotalPrice)
	assert.Equal(t, order.Ticket, updated.Ticket)
	assert.Equal(t, models.StatusPending, updated.Status)

	_, err = f.svc.UpdateOrder(ctx, "missing", UpdatePatch{UserID: f.user.ID, Items: updated.LineItems()})
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	_, err = f.svc.UpdateOrder(ctx, order.ID, UpdatePatch{UserID: f.user.ID})
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput))

	_, err = f.svc.UpdateOrder(ctx, order.ID, UpdatePatch{UserID: f.user.ID, Items: []models.LineItem{{ProductID: "missing", Quantity: 1}}})
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	done := true
	_, err = f.svc.UpdateOrder(ctx, order.ID, UpdatePatch{UserID: f.user.ID, Items: updated.LineItems(), Completed: &done})
	assert.True(t, apperr.IsKind(err, apperr.Conflict))
}

func TestUpdateOrderCompletedFlag(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, f.user.ID, []models.LineItem{{ProductID: f.x.ID, Quantity: 1}})
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, order.ID, "processing")
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, order.ID, "shipped")
	require.NoError(t, err)

	done := true
	completed, err := f.svc.UpdateOrder(ctx, order.ID, UpdatePatch{UserID: f.user.ID, Items: order.LineItems(), Completed: &done})
	require.NoError(t, err)
	assert.True(t, completed.Completed)
	assert.Equal(t, models.StatusCompleted, completed.Status)

	_, err = f.svc.UpdateOrder(ctx, order.ID, UpdatePatch{UserID: f.user.ID, Items: order.LineItems()})
	assert.True(t, apperr.IsKind(err, apperr.Conflict))
}

func TestGetListDelete(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	now := time.Now()
	f.svc.now = func() time.Time { return now }
	first, err := f.svc.CreateOrder(ctx, f.user.ID, []models.LineItem{{ProductID: f.x.ID, Quantity: 1}})
	require.NoError(t, err)
	f.svc.now = func() time.Time { return now.Add(time.Second) }
	second, err := f.svc.CreateOrder(ctx, f.user.ID, []models.LineItem{{ProductID: f.y.ID, Quantity: 1}})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, first.ID, "someone-else", false)
	assert.True(t, apperr.IsKind(err, apperr.Forbidden))
	got, err := f.svc.Get(ctx, first.ID, f.user.ID, false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	_, err = f.svc.Get(ctx, first.ID, "admin", true)
	assert.NoError(t, err)

	mine, err := f.svc.ListForUser(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)

	require.NoError(t, f.svc.Delete(ctx, first.ID))
	err = f.svc.Delete(ctx, first.ID)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	all, err := f.svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListAllWithUsers(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	bob := &models.User{ID: "u2", Username: "bob", Roles: models.Roles{models.RoleUser}, Active: true}
	require.NoError(t, f.store.CreateUser(ctx, bob))
	_, err := f.svc.CreateOrder(ctx, f.user.ID, []models.LineItem{{ProductID: f.x.ID, Quantity: 1}})
	require.NoError(t, err)
	_, err = f.svc.CreateOrder(ctx, f.user.ID, []models.LineItem{{ProductID: f.y.ID, Quantity: 1}})
	require.NoError(t, err)
	_, err = f.svc.CreateOrder(ctx, bob.ID, []models.LineItem{{ProductID: f.x.ID, Quantity: 3}})
	require.NoError(t, err)
	require.NoError(t, f.store.CreateOrder(ctx, &models.Order{ID: "orphan", UserID: "supprimé", Status: models.StatusPending}))

	list, err := f.svc.ListAllWithUsers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 4)

	names := map[string]int{}
	for _, o := range list {
		names[o.Username]++
		switch o.UserID {
		case f.user.ID:
			assert.Equal(t, "alice", o.Username)
		case bob.ID:
			assert.Equal(t, "bob", o.Username)
		default:
			assert.Empty(t, o.Username)
		}
	}
	assert.Equal(t, map[string]int{"alice": 2, "bob": 1, "": 1}, names)
}
