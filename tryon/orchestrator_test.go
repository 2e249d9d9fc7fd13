package tryon

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/raushankrgupta/fitview-tryon/cache"
	"github.com/raushankrgupta/fitview-tryon/errs"
	"github.com/raushankrgupta/fitview-tryon/models"
	"github.com/raushankrgupta/fitview-tryon/providers"
)

type fakeCatalog struct {
	mu       sync.Mutex
	models   map[string]*models.Model
	products map[string]*models.Product
	usage    map[string]int
}

func (f *fakeCatalog) GetModel(ctx context.Context, id string) (*models.Model, error) {
	if m, ok := f.models[id]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("model %s: %w", id, errs.ErrNotFound)
}

func (f *fakeCatalog) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	if p, ok := f.products[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("product %s: %w", id, errs.ErrNotFound)
}

func (f *fakeCatalog) IncrementUsage(ctx context.Context, modelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage[modelID]++
	return nil
}

type fakeSessions struct {
	mu       sync.Mutex
	inserted []*models.TryOnSession
}

// Insert keeps a snapshot of the document, like a real database would:
// later in-memory mutations (presigned URLs) must not leak into the store.
func (f *fakeSessions) Insert(ctx context.Context, sess *models.TryOnSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sess.ID.IsZero() {
		sess.ID = primitive.NewObjectID()
	}
	stored := *sess
	f.inserted = append(f.inserted, &stored)
	return nil
}

func (f *fakeSessions) FindByID(ctx context.Context, id, userID string) (*models.TryOnSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sess := range f.inserted {
		if sess.ID.Hex() == id && sess.UserID == userID {
			copied := *sess
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("session %s: %w", id, errs.ErrNotFound)
}

func (f *fakeSessions) FindByUser(ctx context.Context, userID string, page, limit int) ([]*models.TryOnSession, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.TryOnSession
	for _, sess := range f.inserted {
		if sess.UserID == userID {
			copied := *sess
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeSessions) SetFavorite(ctx context.Context, id, userID string, favorite bool) (*models.TryOnSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sess := range f.inserted {
		if sess.ID.Hex() == id && sess.UserID == userID {
			sess.IsFavorite = favorite
			copied := *sess
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("session %s: %w", id, errs.ErrNotFound)
}

type fakeAssets struct {
	files map[string][]byte
}

func (f *fakeAssets) Load(ref string) ([]byte, error) {
	if data, ok := f.files[ref]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("asset %q: %w", ref, errs.ErrNotFound)
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeStorage) Save(ctx context.Context, data []byte, folder, filename string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := folder + "/" + filename
	f.objects[key] = data
	return key, nil
}

func (f *fakeStorage) Load(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data, ok := f.objects[key]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("object %q: %w", key, errs.ErrNotFound)
}

func (f *fakeStorage) ResolveURL(ctx context.Context, key string) (string, error) {
	return "https://cdn.test/" + key, nil
}

// identityTransform passes image bytes through untouched so tests do not
// need decodable fixtures.
type identityTransform struct{}

func (identityTransform) PreprocessSubject(data []byte) ([]byte, error) { return data, nil }
func (identityTransform) PreprocessGarment(data []byte) ([]byte, error) { return data, nil }
func (identityTransform) Postprocess(data []byte) ([]byte, error)       { return data, nil }

type fakeCompositor struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeCompositor) Compose(subject []byte, garments [][]byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return []byte("fallback-composite"), nil
}

type fakeProvider struct {
	mu    sync.Mutex
	name  string
	out   []byte
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(ctx context.Context, subject []byte, garments [][]byte, in providers.Instruction) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type fixture struct {
	orch       *Orchestrator
	catalog    *fakeCatalog
	sessions   *fakeSessions
	storage    *fakeStorage
	compositor *fakeCompositor
	cache      *cache.InMemory
	modelID    string
	productIDs []string
}

func newFixture(t *testing.T, provs ...providers.Provider) *fixture {
	t.Helper()

	modelID := primitive.NewObjectID()
	productIDs := make([]string, 6)
	products := make(map[string]*models.Product, len(productIDs))
	files := map[string][]byte{"models/m1.png": []byte("subject-bytes")}
	for i := range productIDs {
		id := primitive.NewObjectID()
		productIDs[i] = id.Hex()
		ref := fmt.Sprintf("products/p%d.png", i)
		products[id.Hex()] = &models.Product{
			ID:     id,
			Name:   fmt.Sprintf("Shirt %d", i),
			Images: []string{ref},
		}
		files[ref] = []byte(fmt.Sprintf("garment-%d", i))
	}

	catalog := &fakeCatalog{
		models: map[string]*models.Model{
			modelID.Hex(): {ID: modelID, Name: "Ava", ImageURL: "models/m1.png"},
		},
		products: products,
		usage:    map[string]int{},
	}
	sessions := &fakeSessions{}
	store := &fakeStorage{objects: map[string][]byte{}}
	compositor := &fakeCompositor{}
	resultCache := cache.NewInMemory()

	orch := NewOrchestrator(
		catalog, sessions, &fakeAssets{files: files}, store,
		identityTransform{}, compositor, resultCache,
		provs, time.Hour, zap.NewNop(),
	)

	return &fixture{
		orch: orch, catalog: catalog, sessions: sessions, storage: store,
		compositor: compositor, cache: resultCache,
		modelID: modelID.Hex(), productIDs: productIDs,
	}
}

func TestGenerateUsesFirstHealthyProvider(t *testing.T) {
	failing := &fakeProvider{name: "gemini", err: &providers.Error{Provider: "gemini", Kind: providers.KindServer, Err: assert.AnError}}
	healthy := &fakeProvider{name: "bedrock", out: []byte("bedrock-image")}
	f := newFixture(t, failing, healthy)

	sess, err := f.orch.Generate(context.Background(), "user1", f.modelID, f.productIDs[0])
	require.NoError(t, err)

	assert.Equal(t, "bedrock", sess.AIProvider)
	assert.Equal(t, models.StatusCompleted, sess.Status)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, healthy.calls)
	assert.Equal(t, 0, f.compositor.calls)
	assert.True(t, strings.HasPrefix(sess.ResultURL, "https://cdn.test/tryon_results/"))
	assert.Equal(t, 1, f.catalog.usage[f.modelID])
	require.Len(t, f.sessions.inserted, 1)
}

func TestGenerateFallsBackWhenAllProvidersFail(t *testing.T) {
	failing := &fakeProvider{name: "gemini", err: &providers.Error{Provider: "gemini", Kind: providers.KindRateLimited, Err: assert.AnError}}
	f := newFixture(t, failing)

	sess, err := f.orch.Generate(context.Background(), "user1", f.modelID, f.productIDs[0])
	require.NoError(t, err, "provider exhaustion must never fail the request")

	assert.Equal(t, models.ProviderFallback, sess.AIProvider)
	assert.Equal(t, models.StatusCompleted, sess.Status)
	assert.Equal(t, 1, f.compositor.calls)
}

func TestGenerateWithoutProvidersUsesFallback(t *testing.T) {
	f := newFixture(t)

	sess, err := f.orch.Generate(context.Background(), "user1", f.modelID, f.productIDs[0])
	require.NoError(t, err)
	assert.Equal(t, models.ProviderFallback, sess.AIProvider)
}

func TestGenerateUnknownProductSkipsPipeline(t *testing.T) {
	provider := &fakeProvider{name: "gemini", out: []byte("img")}
	f := newFixture(t, provider)

	_, err := f.orch.Generate(context.Background(), "user1", f.modelID, primitive.NewObjectID().Hex())

	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Equal(t, 0, provider.calls)
	assert.Equal(t, 0, f.compositor.calls)
	assert.Empty(t, f.sessions.inserted)
}

func TestGenerateProductWithoutImages(t *testing.T) {
	f := newFixture(t)
	id := primitive.NewObjectID()
	f.catalog.products[id.Hex()] = &models.Product{ID: id, Name: "Empty"}

	_, err := f.orch.Generate(context.Background(), "user1", f.modelID, id.Hex())
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestGenerateCacheHitCreatesFreshSession(t *testing.T) {
	provider := &fakeProvider{name: "gemini", out: []byte("img")}
	f := newFixture(t, provider)

	first, err := f.orch.Generate(context.Background(), "user1", f.modelID, f.productIDs[0])
	require.NoError(t, err)

	second, err := f.orch.Generate(context.Background(), "user2", f.modelID, f.productIDs[0])
	require.NoError(t, err)

	assert.Equal(t, 1, provider.calls, "cache hit must not regenerate")
	require.Len(t, f.sessions.inserted, 2, "every request gets its own session")
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "user2", second.UserID)
	assert.Equal(t, first.AIProvider, second.AIProvider)
	assert.Equal(t, models.StatusCompleted, second.Status)
}

func TestGenerateSessionRetention(t *testing.T) {
	f := newFixture(t)

	sess, err := f.orch.Generate(context.Background(), "user1", f.modelID, f.productIDs[0])
	require.NoError(t, err)

	assert.Equal(t, sess.CreatedAt.Add(models.SessionRetention), sess.ExpiresAt)
}

func TestGenerateWithPhoto(t *testing.T) {
	provider := &fakeProvider{name: "gemini", out: []byte("img")}
	f := newFixture(t, provider)

	sess, err := f.orch.GenerateWithPhoto(context.Background(), "user1", []byte("raw-photo"), f.productIDs[0])
	require.NoError(t, err)

	assert.Equal(t, UserUploadSubjectID, sess.ModelID)
	assert.Equal(t, "Your Photo", sess.ModelName)
	assert.True(t, strings.HasPrefix(sess.ModelImageURL, "user_photos/"))

	// The uploaded photo is archived alongside the result.
	var photoKeys int
	for key := range f.storage.objects {
		if strings.HasPrefix(key, "user_photos/") {
			photoKeys++
		}
	}
	assert.Equal(t, 1, photoKeys)

	// User photos are never cached: a second call regenerates.
	_, err = f.orch.GenerateWithPhoto(context.Background(), "user1", []byte("raw-photo"), f.productIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
}

func TestGenerateBatchProducesIndividualAndCombined(t *testing.T) {
	provider := &fakeProvider{name: "gemini", out: []byte("img")}
	f := newFixture(t, provider)

	resp, err := f.orch.GenerateBatch(context.Background(), "user1", f.modelID, f.productIDs[:3])
	require.NoError(t, err)

	assert.NotEmpty(t, resp.BatchID)
	assert.Equal(t, 3, resp.ProductCount)
	require.Len(t, resp.IndividualResults, 3)
	for i, sess := range resp.IndividualResults {
		require.NotNil(t, sess, "individual result %d", i)
		assert.Equal(t, f.productIDs[i], sess.ProductID, "results keep request order")
	}
	require.NotNil(t, resp.CombinedResult)
	assert.Contains(t, resp.CombinedResult.ProductName, "Combined Outfit (3 items)")
	// 3 individual passes + 1 combined pass.
	assert.Equal(t, 4, provider.calls)
}

func TestGenerateBatchSingleGarmentSkipsCombined(t *testing.T) {
	f := newFixture(t, &fakeProvider{name: "gemini", out: []byte("img")})

	resp, err := f.orch.GenerateBatch(context.Background(), "user1", f.modelID, f.productIDs[:1])
	require.NoError(t, err)

	require.Len(t, resp.IndividualResults, 1)
	assert.Nil(t, resp.CombinedResult)
}

func TestGenerateBatchSizeLimits(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.GenerateBatch(context.Background(), "user1", f.modelID, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = f.orch.GenerateBatch(context.Background(), "user1", f.modelID, f.productIDs[:6])
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestGenerateBatchCombinedCacheKeyIgnoresOrder(t *testing.T) {
	provider := &fakeProvider{name: "gemini", out: []byte("img")}
	f := newFixture(t, provider)

	_, err := f.orch.GenerateBatch(context.Background(), "user1", f.modelID, f.productIDs[:2])
	require.NoError(t, err)
	callsAfterFirst := provider.calls

	reversed := []string{f.productIDs[1], f.productIDs[0]}
	resp, err := f.orch.GenerateBatch(context.Background(), "user1", f.modelID, reversed)
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, provider.calls, "second batch should be served entirely from cache")
	require.NotNil(t, resp.CombinedResult)
}

func TestRestyleWithoutProviders(t *testing.T) {
	f := newFixture(t)
	base, err := f.orch.Generate(context.Background(), "user1", f.modelID, f.productIDs[0])
	require.NoError(t, err)

	_, err = f.orch.Restyle(context.Background(), "user1", base.ID.Hex(), "party")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestRestyleCreatesNewSession(t *testing.T) {
	provider := &fakeProvider{name: "gemini", out: []byte("img")}
	f := newFixture(t, provider)

	base, err := f.orch.Generate(context.Background(), "user1", f.modelID, f.productIDs[0])
	require.NoError(t, err)

	restyled, err := f.orch.Restyle(context.Background(), "user1", base.ID.Hex(), "party")
	require.NoError(t, err)

	assert.NotEqual(t, base.ID, restyled.ID)
	assert.Contains(t, restyled.ProductName, "(party style)")
	assert.Equal(t, base.ModelID, restyled.ModelID)
	require.Len(t, f.sessions.inserted, 2)
}

func TestRestyleUnknownSession(t *testing.T) {
	f := newFixture(t, &fakeProvider{name: "gemini", out: []byte("img")})

	_, err := f.orch.Restyle(context.Background(), "user1", primitive.NewObjectID().Hex(), "party")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestToggleFavorite(t *testing.T) {
	f := newFixture(t)
	base, err := f.orch.Generate(context.Background(), "user1", f.modelID, f.productIDs[0])
	require.NoError(t, err)

	sess, err := f.orch.ToggleFavorite(context.Background(), base.ID.Hex(), "user1", true)
	require.NoError(t, err)
	assert.True(t, sess.IsFavorite)

	sess, err = f.orch.ToggleFavorite(context.Background(), base.ID.Hex(), "user1", false)
	require.NoError(t, err)
	assert.False(t, sess.IsFavorite)
}

func TestToggleFavoriteOtherUsersSession(t *testing.T) {
	f := newFixture(t)
	base, err := f.orch.Generate(context.Background(), "user1", f.modelID, f.productIDs[0])
	require.NoError(t, err)

	_, err = f.orch.ToggleFavorite(context.Background(), base.ID.Hex(), "intruder", true)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestHistoryScopedToUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Generate(context.Background(), "user1", f.modelID, f.productIDs[0])
	require.NoError(t, err)
	_, err = f.orch.GenerateWithPhoto(context.Background(), "user2", []byte("photo"), f.productIDs[1])
	require.NoError(t, err)

	resp, err := f.orch.History(context.Background(), "user1", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, resp.Total)
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, "user1", resp.Sessions[0].UserID)
}
