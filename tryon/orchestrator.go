// Package tryon coordinates the virtual try-on pipeline: cache lookup, asset
// loading, preprocessing, provider attempts with fallback compositing,
// postprocessing, persistence, and cache population.
package tryon

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/raushankrgupta/fitview-tryon/cache"
	"github.com/raushankrgupta/fitview-tryon/errs"
	"github.com/raushankrgupta/fitview-tryon/models"
	"github.com/raushankrgupta/fitview-tryon/providers"
)

// ErrProviderUnavailable is returned by operations that cannot fall back to
// the deterministic compositor (restyle) when every provider has failed.
var ErrProviderUnavailable = errors.New("no image provider available")

// UserUploadSubjectID marks sessions whose subject was a caller-provided
// photo rather than a catalog model.
const UserUploadSubjectID = "user_upload"

// Catalog reads fashion models and products. Soft-deleted entries must be
// indistinguishable from missing ones.
type Catalog interface {
	GetModel(ctx context.Context, id string) (*models.Model, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	IncrementUsage(ctx context.Context, modelID string) error
}

// SessionStore is the append-only try-on session log.
type SessionStore interface {
	Insert(ctx context.Context, sess *models.TryOnSession) error
	FindByID(ctx context.Context, id, userID string) (*models.TryOnSession, error)
	FindByUser(ctx context.Context, userID string, page, limit int) ([]*models.TryOnSession, int64, error)
	SetFavorite(ctx context.Context, id, userID string, favorite bool) (*models.TryOnSession, error)
}

// AssetLoader resolves stored image references to raw bytes.
type AssetLoader interface {
	Load(ref string) ([]byte, error)
}

// ObjectStorage persists generated composites and resolves stored keys to
// delivery URLs.
type ObjectStorage interface {
	Save(ctx context.Context, data []byte, folder, filename string) (string, error)
	Load(ctx context.Context, key string) ([]byte, error)
	ResolveURL(ctx context.Context, key string) (string, error)
}

// Transformer is the image pre/postprocessing stage.
type Transformer interface {
	PreprocessSubject(data []byte) ([]byte, error)
	PreprocessGarment(data []byte) ([]byte, error)
	Postprocess(data []byte) ([]byte, error)
}

// Compositor produces the deterministic fallback composite.
type Compositor interface {
	Compose(subject []byte, garments [][]byte) ([]byte, error)
}

// Orchestrator owns the end-to-end pipeline sequence. All collaborators are
// stateless except the cache and the session store.
type Orchestrator struct {
	catalog    Catalog
	sessions   SessionStore
	assets     AssetLoader
	storage    ObjectStorage
	transform  Transformer
	compositor Compositor
	cache      cache.Cache
	providers  []providers.Provider
	cacheTTL   time.Duration
	log        *zap.Logger
}

// NewOrchestrator wires the pipeline. Providers are attempted in slice
// order; an empty slice means every request takes the fallback path.
func NewOrchestrator(
	catalog Catalog,
	sessions SessionStore,
	assets AssetLoader,
	storage ObjectStorage,
	transform Transformer,
	compositor Compositor,
	resultCache cache.Cache,
	provs []providers.Provider,
	cacheTTL time.Duration,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		catalog:    catalog,
		sessions:   sessions,
		assets:     assets,
		storage:    storage,
		transform:  transform,
		compositor: compositor,
		cache:      resultCache,
		providers:  provs,
		cacheTTL:   cacheTTL,
		log:        log,
	}
}

// renderJob carries everything one pipeline run needs past the asset-fetch
// and preprocess stages.
type renderJob struct {
	cacheKey        string // empty disables cache population
	userID          string
	modelID         string
	productID       string
	modelName       string
	productName     string
	modelImageURL   string
	productImageURL string
	subject         []byte   // preprocessed
	garments        [][]byte // preprocessed
	instruction     providers.Instruction
	filePrefix      string
	usageModelID    string // empty disables usage counting
	start           time.Time
}

// Generate runs the single-garment pipeline for a catalog model and product.
func (o *Orchestrator) Generate(ctx context.Context, userID, modelID, productID string) (*models.TryOnSession, error) {
	start := time.Now()

	key := cache.Key(modelID, productID)
	if entry, ok := o.cache.Get(key); ok {
		o.log.Info("try-on served from cache",
			zap.String("model_id", modelID), zap.String("product_id", productID))
		return o.sessionFromCache(ctx, userID, modelID, productID, entry, start)
	}

	model, err := o.catalog.GetModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	product, err := o.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	subject, err := o.prepareSubject(model)
	if err != nil {
		return nil, err
	}
	garment, garmentURL, err := o.prepareGarment(product)
	if err != nil {
		return nil, err
	}

	return o.render(ctx, renderJob{
		cacheKey:        key,
		userID:          userID,
		modelID:         modelID,
		productID:       productID,
		modelName:       model.Name,
		productName:     product.Name,
		modelImageURL:   model.ImageURL,
		productImageURL: garmentURL,
		subject:         subject,
		garments:        [][]byte{garment},
		instruction:     providers.SingleGarment(),
		filePrefix:      "tryon",
		usageModelID:    modelID,
		start:           start,
	})
}

// GenerateWithPhoto runs the pipeline with a caller-provided subject photo.
// The photo is archived under user_photos; results are not cached because
// the subject has no stable identifier.
func (o *Orchestrator) GenerateWithPhoto(ctx context.Context, userID string, photo []byte, productID string) (*models.TryOnSession, error) {
	start := time.Now()

	product, err := o.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	photoName := fmt.Sprintf("photo_%s.png", strings.ReplaceAll(uuid.NewString(), "-", ""))
	photoKey, err := o.storage.Save(ctx, photo, "user_photos", photoName)
	if err != nil {
		return nil, fmt.Errorf("store user photo: %w", err)
	}

	subject, err := o.transform.PreprocessSubject(photo)
	if err != nil {
		return nil, err
	}
	garment, garmentURL, err := o.prepareGarment(product)
	if err != nil {
		return nil, err
	}

	return o.render(ctx, renderJob{
		userID:          userID,
		modelID:         UserUploadSubjectID,
		productID:       productID,
		modelName:       "Your Photo",
		productName:     product.Name,
		modelImageURL:   photoKey,
		productImageURL: garmentURL,
		subject:         subject,
		garments:        [][]byte{garment},
		instruction:     providers.SingleGarment(),
		filePrefix:      "tryon",
		start:           start,
	})
}

// GenerateBatch runs the single-garment pipeline per product concurrently,
// then one combined-outfit pass over all garments together (2+ garments).
// The subject is loaded and preprocessed once and shared across passes.
func (o *Orchestrator) GenerateBatch(ctx context.Context, userID, modelID string, productIDs []string) (*models.BatchTryOnResponse, error) {
	if len(productIDs) == 0 || len(productIDs) > models.MaxBatchGarments {
		return nil, fmt.Errorf("batch size must be 1-%d garments: %w", models.MaxBatchGarments, errs.ErrInvalidInput)
	}
	start := time.Now()

	model, err := o.catalog.GetModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	subject, err := o.prepareSubject(model)
	if err != nil {
		return nil, err
	}

	individual := make([]*models.TryOnSession, len(productIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, productID := range productIDs {
		g.Go(func() error {
			sess, err := o.generateSingleFor(gctx, userID, model, subject, productID)
			if err != nil {
				return err
			}
			individual[i] = sess
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var combined *models.TryOnSession
	if len(productIDs) >= 2 {
		combined, err = o.generateCombined(ctx, userID, model, subject, productIDs)
		if err != nil {
			return nil, err
		}
	}

	return &models.BatchTryOnResponse{
		BatchID:               uuid.NewString(),
		IndividualResults:     individual,
		CombinedResult:        combined,
		TotalProcessingTimeMs: time.Since(start).Milliseconds(),
		ProductCount:          len(productIDs),
	}, nil
}

// generateSingleFor is the per-garment leg of a batch: same pipeline as
// Generate but reusing the already-preprocessed subject.
func (o *Orchestrator) generateSingleFor(ctx context.Context, userID string, model *models.Model, subject []byte, productID string) (*models.TryOnSession, error) {
	start := time.Now()

	key := cache.Key(model.ID.Hex(), productID)
	if entry, ok := o.cache.Get(key); ok {
		return o.sessionFromCache(ctx, userID, model.ID.Hex(), productID, entry, start)
	}

	product, err := o.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	garment, garmentURL, err := o.prepareGarment(product)
	if err != nil {
		return nil, err
	}

	return o.render(ctx, renderJob{
		cacheKey:        key,
		userID:          userID,
		modelID:         model.ID.Hex(),
		productID:       productID,
		modelName:       model.Name,
		productName:     product.Name,
		modelImageURL:   model.ImageURL,
		productImageURL: garmentURL,
		subject:         subject,
		garments:        [][]byte{garment},
		instruction:     providers.SingleGarment(),
		filePrefix:      "tryon",
		usageModelID:    model.ID.Hex(),
		start:           start,
	})
}

// generateCombined renders the model wearing all garments together.
func (o *Orchestrator) generateCombined(ctx context.Context, userID string, model *models.Model, subject []byte, productIDs []string) (*models.TryOnSession, error) {
	start := time.Now()

	key := cache.Key(model.ID.Hex(), productIDs...)
	if entry, ok := o.cache.Get(key); ok {
		o.log.Info("combined outfit served from cache", zap.String("model_id", model.ID.Hex()))
		return o.sessionFromCache(ctx, userID, model.ID.Hex(), joinedIDs(productIDs), entry, start)
	}

	garments := make([][]byte, 0, len(productIDs))
	firstGarmentURL := ""
	for _, productID := range productIDs {
		product, err := o.catalog.GetProduct(ctx, productID)
		if err != nil {
			return nil, err
		}
		garment, garmentURL, err := o.prepareGarment(product)
		if err != nil {
			return nil, err
		}
		if firstGarmentURL == "" {
			firstGarmentURL = garmentURL
		}
		garments = append(garments, garment)
	}

	return o.render(ctx, renderJob{
		cacheKey:        key,
		userID:          userID,
		modelID:         model.ID.Hex(),
		productID:       joinedIDs(productIDs),
		modelName:       model.Name,
		productName:     fmt.Sprintf("Combined Outfit (%d items)", len(productIDs)),
		modelImageURL:   model.ImageURL,
		productImageURL: firstGarmentURL,
		subject:         subject,
		garments:        garments,
		instruction:     providers.CombinedOutfit(),
		filePrefix:      "tryon_combined",
		usageModelID:    model.ID.Hex(),
		start:           start,
	})
}

// Restyle re-renders an existing session's result in a new setting. There is
// no deterministic fallback for restyling, so exhausted providers surface as
// ErrProviderUnavailable.
func (o *Orchestrator) Restyle(ctx context.Context, userID, sessionID, style string) (*models.TryOnSession, error) {
	start := time.Now()

	sess, err := o.sessions.FindByID(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	base, err := o.storage.Load(ctx, sess.ResultURL)
	if err != nil {
		return nil, fmt.Errorf("load session result: %w", err)
	}

	img, providerName := o.runProviders(ctx, base, nil, providers.StyleRestyle(style))
	if img == nil {
		return nil, ErrProviderUnavailable
	}

	final, err := o.transform.Postprocess(img)
	if err != nil {
		return nil, err
	}

	return o.persistAndRespond(ctx, renderJob{
		userID:          userID,
		modelID:         sess.ModelID,
		productID:       sess.ProductID,
		modelName:       sess.ModelName,
		productName:     fmt.Sprintf("%s (%s style)", sess.ProductName, style),
		modelImageURL:   sess.ModelImageURL,
		productImageURL: sess.ProductImageURL,
		filePrefix:      "tryon_restyled",
		start:           start,
	}, final, providerName)
}

// History returns one page of the user's sessions.
func (o *Orchestrator) History(ctx context.Context, userID string, page, limit int) (*models.TryOnHistoryResponse, error) {
	sessions, total, err := o.sessions.FindByUser(ctx, userID, page, limit)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []*models.TryOnSession{}
	}
	o.resolveResultURLs(ctx, sessions)
	return &models.TryOnHistoryResponse{Sessions: sessions, Total: total, Page: page, Limit: limit}, nil
}

// GetSession returns one of the user's sessions.
func (o *Orchestrator) GetSession(ctx context.Context, sessionID, userID string) (*models.TryOnSession, error) {
	sess, err := o.sessions.FindByID(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	o.resolveResultURLs(ctx, []*models.TryOnSession{sess})
	return sess, nil
}

// ToggleFavorite sets the favorite flag on a session. The session document
// is never otherwise mutated.
func (o *Orchestrator) ToggleFavorite(ctx context.Context, sessionID, userID string, favorite bool) (*models.TryOnSession, error) {
	sess, err := o.sessions.SetFavorite(ctx, sessionID, userID, favorite)
	if err != nil {
		return nil, err
	}
	o.resolveResultURLs(ctx, []*models.TryOnSession{sess})
	return sess, nil
}

// prepareSubject loads and preprocesses the model image.
func (o *Orchestrator) prepareSubject(model *models.Model) ([]byte, error) {
	if model.ImageURL == "" {
		return nil, fmt.Errorf("model %s has no image: %w", model.ID.Hex(), errs.ErrInvalidInput)
	}
	raw, err := o.assets.Load(model.ImageURL)
	if err != nil {
		return nil, err
	}
	return o.transform.PreprocessSubject(raw)
}

// prepareGarment loads and preprocesses the product's primary image.
func (o *Orchestrator) prepareGarment(product *models.Product) ([]byte, string, error) {
	if len(product.Images) == 0 {
		return nil, "", fmt.Errorf("product %s has no images: %w", product.ID.Hex(), errs.ErrInvalidInput)
	}
	garmentURL := product.Images[0]
	raw, err := o.assets.Load(garmentURL)
	if err != nil {
		return nil, "", err
	}
	pre, err := o.transform.PreprocessGarment(raw)
	if err != nil {
		return nil, "", err
	}
	return pre, garmentURL, nil
}

// runProviders tries each configured provider in priority order. Any
// client-level failure moves to the next provider; failures are absorbed,
// never surfaced to the caller.
func (o *Orchestrator) runProviders(ctx context.Context, subject []byte, garments [][]byte, in providers.Instruction) ([]byte, string) {
	for _, p := range o.providers {
		img, err := p.Generate(ctx, subject, garments, in)
		if err != nil {
			o.log.Warn("provider failed, moving on",
				zap.String("provider", p.Name()), zap.Error(err))
			continue
		}
		return img, p.Name()
	}
	return nil, ""
}

// render runs the provider-attempt, fallback, postprocess, persist and cache
// stages of one pipeline pass.
func (o *Orchestrator) render(ctx context.Context, job renderJob) (*models.TryOnSession, error) {
	img, providerName := o.runProviders(ctx, job.subject, job.garments, job.instruction)
	if img == nil {
		o.log.Warn("all providers failed, using fallback composite")
		var err error
		img, err = o.compositor.Compose(job.subject, job.garments)
		if err != nil {
			return nil, err
		}
		providerName = models.ProviderFallback
	}

	final, err := o.transform.Postprocess(img)
	if err != nil {
		return nil, err
	}

	return o.persistAndRespond(ctx, job, final, providerName)
}

// persistAndRespond uploads the finished image, populates the cache, bumps
// usage bookkeeping, inserts the session, and resolves the delivery URL.
// The insert is required; everything after the upload besides it is
// best-effort.
func (o *Orchestrator) persistAndRespond(ctx context.Context, job renderJob, final []byte, providerName string) (*models.TryOnSession, error) {
	filename := fmt.Sprintf("%s_%s.png", job.filePrefix, strings.ReplaceAll(uuid.NewString(), "-", ""))
	resultKey, err := o.storage.Save(ctx, final, "tryon_results", filename)
	if err != nil {
		return nil, fmt.Errorf("store result image: %w", err)
	}

	if job.cacheKey != "" {
		o.cache.Put(job.cacheKey, cache.Entry{
			ResultURL:       resultKey,
			ModelName:       job.modelName,
			ProductName:     job.productName,
			ModelImageURL:   job.modelImageURL,
			ProductImageURL: job.productImageURL,
			Provider:        providerName,
		}, o.cacheTTL)
	}

	if job.usageModelID != "" {
		if err := o.catalog.IncrementUsage(ctx, job.usageModelID); err != nil {
			o.log.Warn("usage count update failed", zap.String("model_id", job.usageModelID), zap.Error(err))
		}
	}

	sess := o.newSession(job, resultKey, providerName)
	if err := o.sessions.Insert(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	o.log.Info("try-on generated",
		zap.String("provider", providerName),
		zap.String("model_id", job.modelID),
		zap.String("product_id", job.productID),
		zap.Int64("elapsed_ms", sess.ProcessingTimeMs))

	o.resolveResultURLs(ctx, []*models.TryOnSession{sess})
	return sess, nil
}

// sessionFromCache creates a fresh session for the requesting user from a
// cached result. The cache saves regeneration cost, not bookkeeping.
func (o *Orchestrator) sessionFromCache(ctx context.Context, userID, modelID, productID string, entry cache.Entry, start time.Time) (*models.TryOnSession, error) {
	sess := o.newSession(renderJob{
		userID:          userID,
		modelID:         modelID,
		productID:       productID,
		modelName:       entry.ModelName,
		productName:     entry.ProductName,
		modelImageURL:   entry.ModelImageURL,
		productImageURL: entry.ProductImageURL,
		start:           start,
	}, entry.ResultURL, entry.Provider)

	if err := o.sessions.Insert(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	o.resolveResultURLs(ctx, []*models.TryOnSession{sess})
	return sess, nil
}

func (o *Orchestrator) newSession(job renderJob, resultKey, providerName string) *models.TryOnSession {
	now := time.Now().UTC()
	return &models.TryOnSession{
		UserID:           job.userID,
		ModelID:          job.modelID,
		ProductID:        job.productID,
		ResultURL:        resultKey,
		ModelName:        job.modelName,
		ProductName:      job.productName,
		ModelImageURL:    job.modelImageURL,
		ProductImageURL:  job.productImageURL,
		Status:           models.StatusCompleted,
		ProcessingTimeMs: time.Since(job.start).Milliseconds(),
		AIProvider:       providerName,
		CreatedAt:        now,
		ExpiresAt:        now.Add(models.SessionRetention),
	}
}

// resolveResultURLs swaps stored object keys for presigned delivery URLs on
// the response copies. Failures leave the key in place; the session record
// already holds the durable reference.
func (o *Orchestrator) resolveResultURLs(ctx context.Context, sessions []*models.TryOnSession) {
	for _, sess := range sessions {
		if sess == nil || sess.ResultURL == "" {
			continue
		}
		if url, err := o.storage.ResolveURL(ctx, sess.ResultURL); err == nil {
			sess.ResultURL = url
		} else {
			o.log.Warn("presign result url failed", zap.Error(err))
		}
	}
}

func joinedIDs(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
