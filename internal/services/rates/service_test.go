package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"zone4/internal/models"
	"zone4/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeOfferRepo struct {
	nextID uint
	offers map[uint]*models.RateOffer
}

func newFakeOfferRepo() *fakeOfferRepo {
	return &fakeOfferRepo{offers: make(map[uint]*models.RateOffer)}
}

var _ repositories.RateOfferRepository = (*fakeOfferRepo)(nil)

func (f *fakeOfferRepo) Create(ctx context.Context, offer *models.RateOffer) error {
	f.nextID++
	offer.ID = f.nextID
	cp := *offer
	f.offers[offer.ID] = &cp
	return nil
}

func (f *fakeOfferRepo) Update(ctx context.Context, offer *models.RateOffer) error {
	cp := *offer
	f.offers[offer.ID] = &cp
	return nil
}

func (f *fakeOfferRepo) FindByID(ctx context.Context, id uint) (*models.RateOffer, error) {
	offer, ok := f.offers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *offer
	return &cp, nil
}

func (f *fakeOfferRepo) FindActiveOffer(ctx context.Context, agentID uint, currencyFrom, currencyTo string) (*models.RateOffer, error) {
	for _, offer := range f.offers {
		if offer.AgentID == agentID && offer.CurrencyFrom == currencyFrom &&
			offer.CurrencyTo == currencyTo && offer.IsActive {
			cp := *offer
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeOfferRepo) ListByAgent(ctx context.Context, agentID uint) ([]models.RateOffer, error) {
	var out []models.RateOffer
	for _, offer := range f.offers {
		if offer.AgentID == agentID {
			out = append(out, *offer)
		}
	}
	return out, nil
}

func (f *fakeOfferRepo) ListActive(ctx context.Context, currencyFrom, currencyTo string) ([]models.RateOffer, error) {
	var out []models.RateOffer
	for _, offer := range f.offers {
		if !offer.IsActive {
			continue
		}
		if currencyFrom != "" && offer.CurrencyFrom != currencyFrom {
			continue
		}
		if currencyTo != "" && offer.CurrencyTo != currencyTo {
			continue
		}
		out = append(out, *offer)
	}
	return out, nil
}

// fakeOfferCache is an in-memory stand-in for the Redis cache service.
// Entries never expire, so anything a write fails to invalidate stays
// visible to reads.
type fakeOfferCache struct {
	entries map[string][]byte
}

func newFakeOfferCache() *fakeOfferCache {
	return &fakeOfferCache{entries: make(map[string][]byte)}
}

var _ offerCache = (*fakeOfferCache)(nil)

func (f *fakeOfferCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, ok := f.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (f *fakeOfferCache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.entries[key] = data
	return nil
}

func (f *fakeOfferCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.entries, key)
	}
	return nil
}

func (f *fakeOfferCache) GenerateKey(entityType, keyType string, value interface{}) string {
	return fmt.Sprintf("%s:%s:%v", entityType, keyType, value)
}

func validOffer() OfferRequest {
	return OfferRequest{
		CurrencyFrom: "USD",
		CurrencyTo:   "NGN",
		Rate:         1500,
		MinAmount:    10,
		MaxAmount:    10000,
	}
}

func TestValidateOffer(t *testing.T) {
	t.Run("returns the stored rate for a covered amount", func(t *testing.T) {
		repo := newFakeOfferRepo()
		svc := NewService(repo, nil)

		_, err := svc.PublishOffer(context.Background(), 2, validOffer())
		require.NoError(t, err)

		rate, err := svc.ValidateOffer(context.Background(), 2, "USD", "NGN", 100)
		require.NoError(t, err)
		assert.Equal(t, float64(1500), rate)
	})

	t.Run("no offer for the pair", func(t *testing.T) {
		svc := NewService(newFakeOfferRepo(), nil)

		_, err := svc.ValidateOffer(context.Background(), 2, "USD", "NGN", 100)
		assert.ErrorIs(t, err, ErrOfferUnavailable)
	})

	t.Run("amount outside the offer bounds", func(t *testing.T) {
		repo := newFakeOfferRepo()
		svc := NewService(repo, nil)
		_, err := svc.PublishOffer(context.Background(), 2, validOffer())
		require.NoError(t, err)

		_, err = svc.ValidateOffer(context.Background(), 2, "USD", "NGN", 5)
		assert.ErrorIs(t, err, ErrOfferUnavailable)

		_, err = svc.ValidateOffer(context.Background(), 2, "USD", "NGN", 20000)
		assert.ErrorIs(t, err, ErrOfferUnavailable)
	})

	t.Run("deactivated offers do not validate", func(t *testing.T) {
		repo := newFakeOfferRepo()
		svc := NewService(repo, nil)
		offer, err := svc.PublishOffer(context.Background(), 2, validOffer())
		require.NoError(t, err)

		require.NoError(t, svc.SetActive(context.Background(), 2, offer.ID, false))

		_, err = svc.ValidateOffer(context.Background(), 2, "USD", "NGN", 100)
		assert.ErrorIs(t, err, ErrOfferUnavailable)
	})

	t.Run("serves the cached offer on a repeat read", func(t *testing.T) {
		repo := newFakeOfferRepo()
		cache := newFakeOfferCache()
		svc := NewService(repo, cache)
		offer, err := svc.PublishOffer(context.Background(), 2, validOffer())
		require.NoError(t, err)

		_, err = svc.ValidateOffer(context.Background(), 2, "USD", "NGN", 100)
		require.NoError(t, err)

		// Direct row change, bypassing the service. The cached copy wins
		// until its entry is invalidated or expires.
		repo.offers[offer.ID].Rate = 1600
		rate, err := svc.ValidateOffer(context.Background(), 2, "USD", "NGN", 100)
		require.NoError(t, err)
		assert.Equal(t, float64(1500), rate)
	})

	t.Run("re-pointing an offer retires the old pair immediately", func(t *testing.T) {
		repo := newFakeOfferRepo()
		cache := newFakeOfferCache()
		svc := NewService(repo, cache)
		offer, err := svc.PublishOffer(context.Background(), 2, validOffer())
		require.NoError(t, err)

		// Populate the USD/NGN cache entry.
		_, err = svc.ValidateOffer(context.Background(), 2, "USD", "NGN", 100)
		require.NoError(t, err)

		req := validOffer()
		req.CurrencyFrom = "EUR"
		req.Rate = 1700
		_, err = svc.UpdateOffer(context.Background(), 2, offer.ID, req)
		require.NoError(t, err)

		_, err = svc.ValidateOffer(context.Background(), 2, "USD", "NGN", 100)
		assert.ErrorIs(t, err, ErrOfferUnavailable)

		rate, err := svc.ValidateOffer(context.Background(), 2, "EUR", "NGN", 100)
		require.NoError(t, err)
		assert.Equal(t, float64(1700), rate)
	})

	t.Run("deactivation is visible through the cache", func(t *testing.T) {
		repo := newFakeOfferRepo()
		cache := newFakeOfferCache()
		svc := NewService(repo, cache)
		offer, err := svc.PublishOffer(context.Background(), 2, validOffer())
		require.NoError(t, err)

		_, err = svc.ValidateOffer(context.Background(), 2, "USD", "NGN", 100)
		require.NoError(t, err)

		require.NoError(t, svc.SetActive(context.Background(), 2, offer.ID, false))

		_, err = svc.ValidateOffer(context.Background(), 2, "USD", "NGN", 100)
		assert.ErrorIs(t, err, ErrOfferUnavailable)
	})
}

func TestOfferManagement(t *testing.T) {
	t.Run("publish validates the payload", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(*OfferRequest)
		}{
			{"bad currency code", func(r *OfferRequest) { r.CurrencyFrom = "US" }},
			{"zero rate", func(r *OfferRequest) { r.Rate = 0 }},
			{"negative rate", func(r *OfferRequest) { r.Rate = -2 }},
			{"inverted bounds", func(r *OfferRequest) { r.MinAmount = 500; r.MaxAmount = 100 }},
			{"zero max", func(r *OfferRequest) { r.MaxAmount = 0 }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc := NewService(newFakeOfferRepo(), nil)
				req := validOffer()
				tt.mutate(&req)

				_, err := svc.PublishOffer(context.Background(), 2, req)
				assert.ErrorIs(t, err, ErrValidation)
			})
		}
	})

	t.Run("agents can only touch their own offers", func(t *testing.T) {
		repo := newFakeOfferRepo()
		svc := NewService(repo, nil)
		offer, err := svc.PublishOffer(context.Background(), 2, validOffer())
		require.NoError(t, err)

		_, err = svc.UpdateOffer(context.Background(), 3, offer.ID, validOffer())
		assert.ErrorIs(t, err, ErrNotOfferOwner)

		err = svc.SetActive(context.Background(), 3, offer.ID, false)
		assert.ErrorIs(t, err, ErrNotOfferOwner)
	})

	t.Run("update replaces the terms", func(t *testing.T) {
		repo := newFakeOfferRepo()
		svc := NewService(repo, nil)
		offer, err := svc.PublishOffer(context.Background(), 2, validOffer())
		require.NoError(t, err)

		req := validOffer()
		req.Rate = 1550
		updated, err := svc.UpdateOffer(context.Background(), 2, offer.ID, req)
		require.NoError(t, err)
		assert.Equal(t, float64(1550), updated.Rate)

		rate, err := svc.ValidateOffer(context.Background(), 2, "USD", "NGN", 100)
		require.NoError(t, err)
		assert.Equal(t, float64(1550), rate)
	})

	t.Run("unknown offer", func(t *testing.T) {
		svc := NewService(newFakeOfferRepo(), nil)

		_, err := svc.UpdateOffer(context.Background(), 2, 99, validOffer())
		assert.ErrorIs(t, err, ErrOfferNotFound)
	})

	t.Run("active listing filters by pair", func(t *testing.T) {
		repo := newFakeOfferRepo()
		svc := NewService(repo, nil)
		_, err := svc.PublishOffer(context.Background(), 2, validOffer())
		require.NoError(t, err)

		gbp := validOffer()
		gbp.CurrencyFrom = "GBP"
		_, err = svc.PublishOffer(context.Background(), 2, gbp)
		require.NoError(t, err)

		offers, err := svc.ListActiveOffers(context.Background(), "USD", "NGN")
		require.NoError(t, err)
		assert.Len(t, offers, 1)

		offers, err = svc.ListActiveOffers(context.Background(), "", "")
		require.NoError(t, err)
		assert.Len(t, offers, 2)
	})
}
