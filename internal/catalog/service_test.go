package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront_back_end/internal/apperr"
	"storefront_back_end/internal/models"
	"storefront_back_end/internal/store/memory"
)

type fakeSearcher struct {
	indexed map[string]models.Product
	deleted []string
	fail    bool
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{indexed: map[string]models.Product{}}
}

func (f *fakeSearcher) Index(_ context.Context, p models.Product) error {
	f.indexed[p.ID] = p
	return nil
}

func (f *fakeSearcher) Delete(_ context.Context, id string) error {
	delete(f.indexed, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeSearcher) Search(_ context.Context, _ string) ([]models.Product, error) {
	if f.fail {
		return nil, errors.New("cluster indisponible")
	}
	out := make([]models.Product, 0, len(f.indexed))
	for _, p := range f.indexed {
		out = append(out, p)
	}
	return out, nil
}

type countingCache struct {
	products    []models.Product
	set         bool
	invalidated int
	gen         int64
}

func (c *countingCache) GetPublic(context.Context) ([]models.Product, bool) {
	return c.products, c.set
}

func (c *countingCache) Generation(context.Context) (int64, error) {
	return c.gen, nil
}

func (c *countingCache) SetPublic(_ context.Context, gen int64, p []models.Product) {
	if gen != c.gen {
		return
	}
	c.products, c.set = p, true
}

func (c *countingCache) Invalidate(context.Context) {
	c.products, c.set = nil, false
	c.invalidated++
	c.gen++
}

// hookedStore exécute onList une fois, juste après la lecture des produits.
type hookedStore struct {
	*memory.Store
	onList func()
}

func (h *hookedStore) ListProducts(ctx context.Context, onlyAvailable bool) ([]models.Product, error) {
	products, err := h.Store.ListProducts(ctx, onlyAvailable)
	if h.onList != nil {
		hook := h.onList
		h.onList = nil
		hook()
	}
	return products, err
}

func price(v float64) *float64 { return &v }
func flag(v bool) *bool        { return &v }
func text(v string) *string    { return &v }

func newTestCatalog() (*Service, *memory.Store, *fakeSearcher, *countingCache) {
	st := memory.New()
	search := newFakeSearcher()
	cache := &countingCache{}
	return NewService(st, search, cache, nil), st, search, cache
}

func TestCreateAssignsSequenceAndDefaults(t *testing.T) {
	svc, _, search, _ := newTestCatalog()
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateInput{Name: "Lampe", Price: price(10), ImageURL: "/img/lampe.png"})
	require.NoError(t, err)
	second, err := svc.Create(ctx, CreateInput{Name: "Chaise", Price: price(0), ImageURL: "/img/chaise.png", Available: flag(false)})
	require.NoError(t, err)

	assert.Equal(t, int64(100), first.ProductNumber)
	assert.Equal(t, int64(101), second.ProductNumber)
	assert.True(t, first.Available)
	assert.False(t, second.Available)
	assert.Contains(t, search.indexed, first.ID)
}

func TestCreateRequiresFields(t *testing.T) {
	svc, st, _, _ := newTestCatalog()
	ctx := context.Background()

	inputs := []CreateInput{
		{Price: price(10), ImageURL: "/img/x.png"},
		{Name: "Lampe", ImageURL: "/img/x.png"},
		{Name: "Lampe", Price: price(10)},
		{Name: "Lampe", Price: price(10), ImageURL: "   "},
		{Name: "Lampe", Price: price(-1), ImageURL: "/img/x.png"},
	}
	for _, in := range inputs {
		_, err := svc.Create(ctx, in)
		assert.True(t, apperr.IsKind(err, apperr.InvalidInput), "%+v", in)
	}

	all, err := st.ListProducts(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateDuplicateNameIgnoringCase(t *testing.T) {
	svc, _, _, _ := newTestCatalog()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "Lampe", Price: price(10), ImageURL: "/img/a.png"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Name: "LAMPE", Price: price(12), ImageURL: "/img/b.png"})
	assert.True(t, apperr.IsKind(err, apperr.Conflict))
}

func TestListAvailableHidesUnavailable(t *testing.T) {
	svc, _, _, cache := newTestCatalog()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "Visible", Price: price(1), ImageURL: "/a"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Name: "Caché", Price: price(1), ImageURL: "/b", Available: flag(false)})
	require.NoError(t, err)

	public, err := svc.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, public, 1)
	for _, p := range public {
		assert.True(t, p.Available)
	}
	assert.True(t, cache.set)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestWritesInvalidateCache(t *testing.T) {
	svc, _, _, cache := newTestCatalog()
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateInput{Name: "Lampe", Price: price(1), ImageURL: "/a"})
	require.NoError(t, err)
	_, _ = svc.ListAvailable(ctx)
	require.True(t, cache.set)

	_, err = svc.Update(ctx, UpdateInput{ID: p.ID, Available: flag(false)})
	require.NoError(t, err)
	assert.False(t, cache.set)

	public, err := svc.ListAvailable(ctx)
	require.NoError(t, err)
	assert.Empty(t, public)
	assert.Equal(t, 2, cache.invalidated)
}

func TestUpdatePartialFields(t *testing.T) {
	svc, _, _, _ := newTestCatalog()
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateInput{Name: "Lampe", Price: price(10), Description: "LED", ImageURL: "/a"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, UpdateInput{ID: p.ID, Price: price(12.5)})
	require.NoError(t, err)
	assert.Equal(t, 12.5, updated.Price)
	assert.Equal(t, "Lampe", updated.Name)
	assert.Equal(t, "LED", updated.Description)
	assert.Equal(t, p.ProductNumber, updated.ProductNumber)

	_, err = svc.Update(ctx, UpdateInput{ID: p.ID, Name: text("")})
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput))
	_, err = svc.Update(ctx, UpdateInput{ID: p.ID, Price: price(-3)})
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput))
	_, err = svc.Update(ctx, UpdateInput{ID: "missing", Price: price(1)})
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestUpdateNameCollision(t *testing.T) {
	svc, _, _, _ := newTestCatalog()
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateInput{Name: "Lampe", Price: price(1), ImageURL: "/a"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, CreateInput{Name: "Table", Price: price(1), ImageURL: "/b"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, UpdateInput{ID: b.ID, Name: text("lampe")})
	assert.True(t, apperr.IsKind(err, apperr.Conflict))

	renamed, err := svc.Update(ctx, UpdateInput{ID: a.ID, Name: text("LAMPE")})
	require.NoError(t, err)
	assert.Equal(t, "LAMPE", renamed.Name)
}

func TestDelete(t *testing.T) {
	svc, _, search, _ := newTestCatalog()
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateInput{Name: "Lampe", Price: price(1), ImageURL: "/a"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, p.ID))
	assert.Equal(t, []string{p.ID}, search.deleted)

	err = svc.Delete(ctx, p.ID)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
	err = svc.Delete(ctx, "")
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput))
}

func TestGetHidesUnavailableFromPublic(t *testing.T) {
	svc, _, _, _ := newTestCatalog()
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateInput{Name: "Prototype", Price: price(1), ImageURL: "/a", Available: flag(false)})
	require.NoError(t, err)

	_, err = svc.Get(ctx, p.ID, false)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	got, err := svc.Get(ctx, p.ID, true)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestSearchFiltersAndFallsBack(t *testing.T) {
	svc, _, search, _ := newTestCatalog()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "Lampe de bureau", Price: price(1), ImageURL: "/a"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Name: "Lampe prototype", Price: price(1), ImageURL: "/b", Available: flag(false)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Name: "Chaise", Price: price(1), ImageURL: "/c"})
	require.NoError(t, err)

	hits, err := svc.Search(ctx, "lampe")
	require.NoError(t, err)
	for _, p := range hits {
		assert.True(t, p.Available)
	}

	search.fail = true
	hits, err = svc.Search(ctx, "LAMPE")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Lampe de bureau", hits[0].Name)
}

func TestListAvailableDoesNotCacheListReadBeforeWrite(t *testing.T) {
	st := &hookedStore{Store: memory.New()}
	cache := &countingCache{}
	svc := NewService(st, nil, cache, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateInput{Name: "Lampe", Price: price(10), ImageURL: "/a"})
	require.NoError(t, err)

	st.onList = func() {
		_, err := svc.Update(ctx, UpdateInput{ID: p.ID, Available: flag(false)})
		require.NoError(t, err)
	}
	// Cette lecture a vu l'ancien état et ne doit pas remplir le cache.
	stale, err := svc.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.False(t, cache.set)

	public, err := svc.ListAvailable(ctx)
	require.NoError(t, err)
	assert.Empty(t, public)
}
