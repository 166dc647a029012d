package consent

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/agentauth/consent-pdp/model"
)

var testNow = time.Date(2024, time.March, 12, 10, 0, 0, 0, time.UTC)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

type mockConsentRepo struct {
	consents map[string]model.Consent
	mockErr  model.HttpError
	blocking bool
	calls    int
}

func (repo *mockConsentRepo) CreateConsent(ctx context.Context, consent model.Consent) model.HttpError {
	repo.consents[consent.ConsentId] = consent
	return model.HttpError{}
}

func (repo *mockConsentRepo) GetConsent(ctx context.Context, consentId string) (model.Consent, model.HttpError) {
	return repo.GetActiveConsent(ctx, consentId)
}

func (repo *mockConsentRepo) GetActiveConsent(ctx context.Context, consentId string) (consent model.Consent, httpErr model.HttpError) {
	repo.calls++
	if repo.blocking {
		<-ctx.Done()
		return consent, model.HttpError{Status: http.StatusInternalServerError, Message: "The store did not answer.", RootError: ctx.Err()}
	}
	if repo.mockErr != (model.HttpError{}) {
		return consent, repo.mockErr
	}
	consent, exists := repo.consents[consentId]
	if !exists {
		return consent, model.HttpError{Status: http.StatusNotFound, Message: fmt.Sprintf("Consent %s not found.", consentId), RootError: nil}
	}
	return consent, httpErr
}

func (repo *mockConsentRepo) RevokeConsent(ctx context.Context, consentId string, revokedAt time.Time) model.HttpError {
	consent := repo.consents[consentId]
	consent.RevokedAt = &revokedAt
	consent.Active = false
	repo.consents[consentId] = consent
	return model.HttpError{}
}

func getTestConsent(consentId string, expiresAt time.Time) model.Consent {
	return model.Consent{ConsentId: consentId, UserId: "user-1", Constraints: model.ConsentConstraints{MaxAmount: 500, Currency: "USD"}, CreatedAt: testNow, ExpiresAt: expiresAt, Active: true}
}

func getTestCache(repo Repository, capacity int, clock *testClock) *Cache {
	return NewCache(repo, time.Minute*5, capacity, time.Millisecond*50, clock)
}

func TestCacheHit(t *testing.T) {
	log.Info("TestCacheHit +++++++++++++++++ Running test.")
	clock := &testClock{now: testNow}
	repo := &mockConsentRepo{consents: map[string]model.Consent{"cons_abc": getTestConsent("cons_abc", testNow.Add(time.Hour))}}
	cache := getTestCache(repo, 10, clock)

	for i := 0; i < 3; i++ {
		_, reason := cache.GetValidConsent(context.Background(), "cons_abc")
		if reason != "" {
			t.Fatalf("The consent is valid but was rejected with %s.", reason)
		}
	}
	if repo.calls != 1 {
		t.Errorf("The store should only be consulted on the first miss, got %d calls.", repo.calls)
	}
}

func TestCacheTtlExpiry(t *testing.T) {
	log.Info("TestCacheTtlExpiry +++++++++++++++++ Running test.")
	clock := &testClock{now: testNow}
	repo := &mockConsentRepo{consents: map[string]model.Consent{"cons_abc": getTestConsent("cons_abc", testNow.Add(time.Hour))}}
	cache := getTestCache(repo, 10, clock)

	cache.GetValidConsent(context.Background(), "cons_abc")
	clock.now = testNow.Add(time.Minute * 6)
	cache.GetValidConsent(context.Background(), "cons_abc")

	if repo.calls != 2 {
		t.Errorf("After the ttl the store has to be consulted again, got %d calls.", repo.calls)
	}
}

func TestCacheDoesNotServeInvalidEntries(t *testing.T) {
	log.Info("TestCacheDoesNotServeInvalidEntries +++++++++++++++++ Running test.")
	clock := &testClock{now: testNow}
	// the consent expires within the cache ttl
	repo := &mockConsentRepo{consents: map[string]model.Consent{"cons_abc": getTestConsent("cons_abc", testNow.Add(time.Minute))}}
	cache := getTestCache(repo, 10, clock)

	_, reason := cache.GetValidConsent(context.Background(), "cons_abc")
	if reason != "" {
		t.Fatalf("The consent is still valid but was rejected with %s.", reason)
	}

	clock.now = testNow.Add(time.Minute * 2)
	_, reason = cache.GetValidConsent(context.Background(), "cons_abc")
	if reason != model.ReasonConsentInvalid {
		t.Errorf("An expired consent must never be served from the cache, got %s.", reason)
	}
}

func TestCacheRevocation(t *testing.T) {
	log.Info("TestCacheRevocation +++++++++++++++++ Running test.")
	clock := &testClock{now: testNow}
	repo := &mockConsentRepo{consents: map[string]model.Consent{"cons_abc": getTestConsent("cons_abc", testNow.Add(time.Hour))}}
	cache := getTestCache(repo, 10, clock)

	cache.GetValidConsent(context.Background(), "cons_abc")
	repo.RevokeConsent(context.Background(), "cons_abc", testNow)
	cache.Invalidate("cons_abc")

	_, reason := cache.GetValidConsent(context.Background(), "cons_abc")
	if reason != model.ReasonConsentInvalid {
		t.Errorf("A revoked consent has to be rejected after invalidation, got %s.", reason)
	}
}

func TestCacheUnknownConsent(t *testing.T) {
	log.Info("TestCacheUnknownConsent +++++++++++++++++ Running test.")
	clock := &testClock{now: testNow}
	repo := &mockConsentRepo{consents: map[string]model.Consent{}}
	cache := getTestCache(repo, 10, clock)

	_, reason := cache.GetValidConsent(context.Background(), "cons_missing")
	if reason != model.ReasonConsentInvalid {
		t.Errorf("An unknown consent has to be rejected as invalid, got %s.", reason)
	}
}

func TestCacheStoreUnavailable(t *testing.T) {
	log.Info("TestCacheStoreUnavailable +++++++++++++++++ Running test.")
	clock := &testClock{now: testNow}
	repo := &mockConsentRepo{consents: map[string]model.Consent{}, mockErr: model.HttpError{Status: http.StatusInternalServerError, Message: "boom", RootError: nil}}
	cache := getTestCache(repo, 10, clock)

	_, reason := cache.GetValidConsent(context.Background(), "cons_abc")
	if reason != model.ReasonConsentUnavailable {
		t.Errorf("A failing store maps to unavailable, not invalid, got %s.", reason)
	}
}

func TestCacheStoreTimeout(t *testing.T) {
	log.Info("TestCacheStoreTimeout +++++++++++++++++ Running test.")
	clock := &testClock{now: testNow}
	repo := &mockConsentRepo{consents: map[string]model.Consent{}, blocking: true}
	cache := getTestCache(repo, 10, clock)

	_, reason := cache.GetValidConsent(context.Background(), "cons_abc")
	if reason != model.ReasonConsentUnavailable {
		t.Errorf("A store timeout maps to unavailable, got %s.", reason)
	}
}

func TestCacheCapacityEviction(t *testing.T) {
	log.Info("TestCacheCapacityEviction +++++++++++++++++ Running test.")
	clock := &testClock{now: testNow}
	repo := &mockConsentRepo{consents: map[string]model.Consent{}}
	cache := getTestCache(repo, 2, clock)

	// fill beyond capacity with increasing cache times
	for i, consentId := range []string{"cons_1", "cons_2", "cons_3"} {
		clock.now = testNow.Add(time.Duration(i) * time.Second)
		consent := getTestConsent(consentId, testNow.Add(time.Hour))
		repo.consents[consentId] = consent
		cache.Put(consent)
	}

	cache.mutex.Lock()
	_, oldestStillCached := cache.entries["cons_1"]
	size := len(cache.entries)
	cache.mutex.Unlock()

	if size != 2 {
		t.Errorf("The cache has to stay inside its capacity, holds %d entries.", size)
	}
	if oldestStillCached {
		t.Errorf("The least-recently-cached entry should have been evicted.")
	}
}
