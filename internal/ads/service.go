package ads

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"classifieds-marketplace/internal/cache"
	"classifieds-marketplace/internal/geo"
	"classifieds-marketplace/internal/idempotency"
	"classifieds-marketplace/internal/inventory"
	"classifieds-marketplace/internal/models"
	"classifieds-marketplace/internal/outbox"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Options tune the orchestrators
type Options struct {
	AutoApprove       bool
	ListTTL           time.Duration
	DetailTTL         time.Duration
	IdempotencyTTL    time.Duration
	ClaimLease        time.Duration
	PostCommitTimeout time.Duration
	DefaultLimit      int
	MaxLimit          int
	RadiiKm           []float64
}

// DefaultOptions returns the production defaults
func DefaultOptions() Options {
	return Options{
		AutoApprove:       true,
		ListTTL:           300 * time.Second,
		DetailTTL:         900 * time.Second,
		IdempotencyTTL:    900 * time.Second,
		ClaimLease:        time.Minute,
		PostCommitTimeout: 5 * time.Second,
		DefaultLimit:      20,
		MaxLimit:          100,
		RadiiKm:           DefaultRadiiKm,
	}
}

// Deps are the collaborators of the service. Nil collaborators fall back to
// gorm-backed defaults (owners, favorites, chat rooms) or a no-op cache.
type Deps struct {
	DB          *gorm.DB
	Idempotency idempotency.Store
	Outbox      outbox.Store
	Cache       cache.Cache
	Inventory   inventory.Gateway
	Geo         *geo.Resolver
	Owners      OwnerDirectory
	Favorites   Favorites
	ChatRooms   ChatRooms
}

// AdDetail is the full single-ad view
type AdDetail struct {
	models.Ad
	Owner          *OwnerSummary     `json:"owner,omitempty"`
	InventoryNames *inventory.Names  `json:"inventoryNames,omitempty"`
	FavoritesCount int64             `json:"favoritesCount"`
	ChatRooms      []ChatRoomSummary `json:"chatRooms"`
	IsFavorited    bool              `json:"isFavorited"`
}

// CreateResult carries the response body exactly as stored for replays
type CreateResult struct {
	Detail   *AdDetail
	Body     []byte
	Replayed bool
}

// Service composes the create, list and get pipelines
type Service struct {
	writer    *Writer
	repo      *Repository
	query     *QueryEngine
	idem      idempotency.Store
	outbox    outbox.Store
	cache     cache.Cache
	inventory inventory.Gateway
	geo       *geo.Resolver
	owners    OwnerDirectory
	favorites Favorites
	chats     ChatRooms
	validate  *validator.Validate
	opts      Options

	wg sync.WaitGroup
}

func NewService(deps Deps, opts Options) *Service {
	s := &Service{
		writer:    NewWriter(deps.DB),
		repo:      NewRepository(deps.DB),
		query:     NewQueryEngine(deps.DB, opts.RadiiKm),
		idem:      deps.Idempotency,
		outbox:    deps.Outbox,
		cache:     deps.Cache,
		inventory: deps.Inventory,
		geo:       deps.Geo,
		owners:    deps.Owners,
		favorites: deps.Favorites,
		chats:     deps.ChatRooms,
		validate:  NewValidator(),
		opts:      opts,
	}
	if s.idem == nil {
		s.idem = idempotency.NewGormStore(deps.DB)
	}
	if s.outbox == nil {
		s.outbox = outbox.NewGormStore(deps.DB)
	}
	if s.cache == nil {
		s.cache = cache.Noop{}
	}
	if s.inventory == nil {
		s.inventory = inventory.NewGormGateway(deps.DB, 2*time.Second)
	}
	if s.owners == nil {
		s.owners = NewGormOwnerDirectory(deps.DB)
	}
	if s.favorites == nil {
		s.favorites = NewGormFavorites(deps.DB)
	}
	if s.chats == nil {
		s.chats = NewGormChatRooms(deps.DB)
	}
	return s
}

// Create runs the create pipeline. With an idempotency key the first
// response is stored and replayed byte for byte on later calls.
func (s *Service) Create(ctx context.Context, owner Owner, in CreateInput, idemKey string) (*CreateResult, error) {
	if owner.ID == "" {
		return nil, ErrUnauthenticated
	}
	if owner.Type == "" {
		owner.Type = models.OwnerTypeUser
	}
	if owner.Type != models.OwnerTypeUser && owner.Type != models.OwnerTypeShowroom {
		verr := NewValidationError()
		verr.Add("ownerType", "must be user or showroom")
		return nil, verr
	}

	storeKey := ""
	if idemKey != "" {
		storeKey = scopedKey(owner.ID, idemKey)
		claim, err := s.idem.Claim(ctx, storeKey, s.opts.ClaimLease)
		if err != nil {
			return nil, err
		}
		if !claim.Claimed {
			return s.replay(claim.Response)
		}
	}

	completed := false
	defer func() {
		if storeKey == "" || completed {
			return
		}
		releaseCtx, cancel := s.detached(ctx)
		defer cancel()
		if err := s.idem.Release(releaseCtx, storeKey); err != nil {
			log.Warn().Err(err).Str("component", "ads").Msg("failed to release idempotency claim")
		}
	}()

	ad, err := s.create(ctx, owner, &in)
	if err != nil {
		return nil, err
	}

	detail := s.detailAfterCreate(ctx, ad, owner.ID)
	body, err := json.Marshal(detail)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ad %s: %w", ad.ID, err)
	}

	if storeKey != "" {
		setCtx, cancel := s.detached(ctx)
		defer cancel()
		if err := s.idem.Set(setCtx, storeKey, body, s.opts.IdempotencyTTL); err != nil {
			log.Error().Err(err).Str("component", "ads").Str("ad_id", ad.ID).Msg("failed to store idempotent response")
		} else {
			completed = true
		}
	}

	return &CreateResult{Detail: detail, Body: body}, nil
}

func (s *Service) replay(body []byte) (*CreateResult, error) {
	var detail AdDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("failed to decode stored response: %w", err)
	}
	return &CreateResult{Detail: &detail, Body: body, Replayed: true}, nil
}

// create validates, checks inventory, writes and runs post-commit side effects
func (s *Service) create(ctx context.Context, owner Owner, in *CreateInput) (*models.Ad, error) {
	p, err := validateCreate(s.validate, in)
	if err != nil {
		log.Debug().Err(err).Str("component", "ads").Msg("create rejected")
		return nil, err
	}

	var spec *models.VehicleSpec
	if in.Category.IsVehicle() {
		spec = p.vehicleSpec()
		err := s.inventory.AssertReferencesValid(ctx, inventory.References{
			ManufacturerID: spec.ManufacturerID,
			ModelID:        spec.ModelID,
			VariantID:      spec.VariantID,
			TransmissionID: spec.TransmissionID,
			FuelTypeID:     spec.FuelTypeID,
		})
		if field, ok := inventory.IsInvalidReference(err); ok {
			verr := NewValidationError()
			verr.Add(field, "invalid reference")
			return nil, verr
		}
		if err != nil {
			return nil, fmt.Errorf("failed to validate inventory references: %w", err)
		}
	}

	location := strings.TrimSpace(in.Location)
	var locality geo.Locality
	if in.Latitude != nil && in.Longitude != nil {
		name, loc := s.geo.LocationName(ctx, *in.Latitude, *in.Longitude)
		locality = loc
		if location == "" {
			location = name
		}
	}

	var title string
	if spec == nil {
		title = propertyTitle(p.property, location)
	} else {
		modelName, _ := s.inventory.ResolveDisplayName(ctx, spec.ModelID)
		title = vehicleTitle(modelName, spec.Year, spec.Color)
	}

	images := in.Images
	if images == nil {
		images = []string{}
	}

	ad := &models.Ad{
		ID:          uuid.NewString(),
		Category:    in.Category,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Price:       *in.Price,
		Images:      images,
		Link:        in.Link,
		Location:    location,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		District:    locality.District,
		State:       locality.State,
		Country:     locality.Country,
		OwnerID:     owner.ID,
		OwnerType:   owner.Type,
		IsActive:    true,
		IsApproved:  s.opts.AutoApprove,
	}

	if err := s.writer.Create(ctx, ad, p.subtype()); err != nil {
		return nil, err
	}

	s.afterCommit(ctx, ad)
	return ad, nil
}

// afterCommit enqueues ad.created and drops list caches. Failures are logged only.
func (s *Service) afterCommit(ctx context.Context, ad *models.Ad) {
	postCtx, cancel := s.detached(ctx)
	defer cancel()

	payload := models.AdCreatedPayload{
		AdID:      ad.ID,
		Category:  ad.Category,
		OwnerID:   ad.OwnerID,
		OwnerType: ad.OwnerType,
	}
	if _, err := s.outbox.Enqueue(postCtx, models.EventAdCreated, ad.ID, payload); err != nil {
		log.Error().Err(err).Str("component", "ads").Str("ad_id", ad.ID).Msg("failed to enqueue ad.created")
	}
	if err := s.cache.InvalidateLists(postCtx); err != nil {
		log.Warn().Err(err).Str("component", "ads").Msg("failed to invalidate list cache")
	}
}

func (s *Service) detailAfterCreate(ctx context.Context, ad *models.Ad, ownerID string) *AdDetail {
	readCtx, cancel := s.detached(ctx)
	defer cancel()

	detail, err := s.loadDetail(readCtx, ad.ID, ownerID)
	if err != nil {
		log.Warn().Err(err).Str("component", "ads").Str("ad_id", ad.ID).Msg("re-read after create failed, using written record")
		return &AdDetail{Ad: *ad, ChatRooms: []ChatRoomSummary{}}
	}
	return detail
}

// Get returns the detail view and counts the view in the background
func (s *Service) Get(ctx context.Context, viewerID, rawID string) (*AdDetail, error) {
	parsed, err := uuid.Parse(rawID)
	if err != nil {
		return nil, ErrInvalidID
	}
	id := parsed.String()

	key := cache.DetailKey(id, viewerID)
	tag := cache.TagForAd(id)
	gen, genErr := s.cache.Generation(ctx, tag)
	if genErr != nil {
		log.Warn().Err(genErr).Str("component", "ads").Str("ad_id", id).Msg("detail cache generation unavailable")
	}

	var cached AdDetail
	ok, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		log.Warn().Err(err).Str("component", "ads").Str("key", key).Msg("detail cache read failed")
	} else if ok {
		s.recordView(id)
		return &cached, nil
	}

	detail, err := s.loadDetail(ctx, id, viewerID)
	if err != nil {
		return nil, err
	}

	if genErr == nil {
		s.cacheAtGeneration(ctx, key, detail, s.opts.DetailTTL, tag, gen)
	}
	s.recordView(id)
	return detail, nil
}

// loadDetail reads the ad and enriches it concurrently. Enrichment failures degrade to empty values.
func (s *Service) loadDetail(ctx context.Context, id, viewerID string) (*AdDetail, error) {
	ad, err := s.repo.FindByID(ctx, id, viewerID)
	if err != nil {
		return nil, err
	}

	detail := &AdDetail{Ad: *ad, ChatRooms: []ChatRoomSummary{}}
	logger := log.With().Str("component", "ads").Str("ad_id", id).Logger()

	var eg errgroup.Group
	eg.Go(func() error {
		owner, err := s.owners.Summary(ctx, ad.OwnerID, ad.OwnerType)
		if err != nil {
			logger.Warn().Err(err).Msg("owner lookup failed")
			return nil
		}
		detail.Owner = owner
		return nil
	})
	eg.Go(func() error {
		n, err := s.favorites.Count(ctx, id)
		if err != nil {
			logger.Warn().Err(err).Msg("favorites count failed")
			return nil
		}
		detail.FavoritesCount = n
		return nil
	})
	eg.Go(func() error {
		rooms, err := s.chats.SummariesForAd(ctx, id, ad.OwnerID, viewerID)
		if err != nil {
			logger.Warn().Err(err).Msg("chat room lookup failed")
			return nil
		}
		detail.ChatRooms = rooms
		return nil
	})
	if viewerID != "" {
		eg.Go(func() error {
			set, err := s.favorites.FavoritedSet(ctx, viewerID, []string{id})
			if err != nil {
				logger.Warn().Err(err).Msg("favorite flag lookup failed")
				return nil
			}
			detail.IsFavorited = set[id]
			return nil
		})
	}
	if spec := vehicleSpecOf(ad); spec != nil {
		eg.Go(func() error {
			names := s.inventory.ResolveNames(ctx, inventory.References{
				ManufacturerID: spec.ManufacturerID,
				ModelID:        spec.ModelID,
				VariantID:      spec.VariantID,
				TransmissionID: spec.TransmissionID,
				FuelTypeID:     spec.FuelTypeID,
			})
			detail.InventoryNames = &names
			return nil
		})
	}
	_ = eg.Wait()

	return detail, nil
}

func vehicleSpecOf(ad *models.Ad) *models.VehicleSpec {
	switch {
	case ad.Vehicle != nil:
		return &ad.Vehicle.VehicleSpec
	case ad.CommercialVehicle != nil:
		return &ad.CommercialVehicle.VehicleSpec
	}
	return nil
}

// List runs the list pipeline. Only the two cacheable shapes touch the cache,
// and isFavorited is always computed after the cache read.
func (s *Service) List(ctx context.Context, viewerID string, f ListFilter) (*ListResult, error) {
	if err := f.normalize(s.opts.DefaultLimit, s.opts.MaxLimit); err != nil {
		return nil, err
	}

	key, cacheable := f.cacheKey()
	var res *ListResult
	var gen int64
	if cacheable {
		// read before querying so a create that lands mid-query voids the write
		var err error
		if gen, err = s.cache.Generation(ctx, cache.TagList); err != nil {
			log.Warn().Err(err).Str("component", "ads").Msg("list cache generation unavailable")
			cacheable = false
		}
	}
	if cacheable {
		var cached ListResult
		ok, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			log.Warn().Err(err).Str("component", "ads").Str("key", key).Msg("list cache read failed")
		} else if ok {
			res = &cached
		}
	}

	if res == nil {
		var viewer *geo.Locality
		if f.HasGeo() {
			if loc, ok := s.geo.Locality(ctx, *f.Lat, *f.Lon); ok {
				viewer = &loc
			}
		}

		live, err := s.query.List(ctx, f, viewer)
		if err != nil {
			return nil, err
		}
		if cacheable {
			s.cacheAtGeneration(ctx, key, live, s.opts.ListTTL, cache.TagList, gen)
		}
		res = live
	}

	s.annotateFavorites(ctx, viewerID, res)
	return res, nil
}

// cacheAtGeneration writes value unless tag was invalidated after gen was read
func (s *Service) cacheAtGeneration(ctx context.Context, key string, value interface{}, ttl time.Duration, tag string, gen int64) {
	stored, err := s.cache.SetIfGeneration(ctx, key, value, ttl, tag, gen)
	if err != nil {
		log.Warn().Err(err).Str("component", "ads").Str("key", key).Msg("cache write failed")
		return
	}
	if !stored {
		log.Debug().Str("component", "ads").Str("key", key).Msg("cache write skipped, invalidated during read")
	}
}

func (s *Service) annotateFavorites(ctx context.Context, viewerID string, res *ListResult) {
	if viewerID == "" || len(res.Data) == 0 {
		return
	}
	ids := make([]string, len(res.Data))
	for i := range res.Data {
		ids[i] = res.Data[i].ID
	}
	set, err := s.favorites.FavoritedSet(ctx, viewerID, ids)
	if err != nil {
		log.Warn().Err(err).Str("component", "ads").Msg("favorite flags unavailable")
		return
	}
	for i := range res.Data {
		res.Data[i].IsFavorited = set[res.Data[i].ID]
	}
}

// InvalidateAd drops every cached detail view of the ad
func (s *Service) InvalidateAd(ctx context.Context, rawID string) error {
	parsed, err := uuid.Parse(rawID)
	if err != nil {
		return ErrInvalidID
	}
	return s.cache.InvalidateAd(ctx, parsed.String())
}

// Wait blocks until background view counting finishes
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) recordView(id string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.IncrementViewCount(ctx, id); err != nil {
			log.Warn().Err(err).Str("component", "ads").Str("ad_id", id).Msg("view count not recorded")
		}
	}()
}

// detached keeps request values but survives client cancellation, so post-commit work always runs
func (s *Service) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.opts.PostCommitTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

// scopedKey namespaces a client key by owner so two owners never share a response
func scopedKey(ownerID, key string) string {
	sum := sha256.Sum256([]byte(ownerID + "\x00" + key))
	return hex.EncodeToString(sum[:])
}

// IsClientError reports whether err is caused by the request rather than the server
func IsClientError(err error) bool {
	_, isValidation := AsValidationError(err)
	return isValidation || errors.Is(err, ErrInvalidID) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnauthenticated) || errors.Is(err, idempotency.ErrRequestInProgress)
}
