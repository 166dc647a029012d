package consent

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/agentauth/consent-pdp/capability"
	"github.com/agentauth/consent-pdp/model"
)

// Cache is a bounded, ttl-based cache in front of the consent store.
// Entries that fail their own validity check are treated as a miss and
// re-resolved against the store, never silently trusted.
type Cache struct {
	mutex        sync.Mutex
	entries      map[string]cacheEntry
	ttl          time.Duration
	capacity     int
	storeTimeout time.Duration
	repo         Repository
	clock        capability.Clock
}

type cacheEntry struct {
	consent  model.Consent
	cachedAt time.Time
}

func NewCache(repo Repository, ttl time.Duration, capacity int, storeTimeout time.Duration, clock capability.Clock) *Cache {
	cache := new(Cache)
	cache.entries = map[string]cacheEntry{}
	cache.ttl = ttl
	cache.capacity = capacity
	cache.storeTimeout = storeTimeout
	cache.repo = repo
	cache.clock = clock
	return cache
}

// GetValidConsent resolves a consent that is active, not revoked and not
// expired. The returned reason is empty on success, consent_invalid when
// the consent is missing/expired/revoked and consent_unavailable when
// the store could not answer in time.
func (cache *Cache) GetValidConsent(ctx context.Context, consentId string) (consent model.Consent, reason string) {
	now := cache.clock.Now()

	if cached, hit := cache.lookup(consentId, now); hit {
		if cached.IsValid(now) {
			return cached, ""
		}
		// cached but not valid anymore, drop it and ask the store
		cache.evict(consentId)
	}

	storeCtx, cancel := context.WithTimeout(ctx, cache.storeTimeout)
	defer cancel()

	consent, httpErr := cache.repo.GetActiveConsent(storeCtx, consentId)
	if httpErr.Status == http.StatusNotFound {
		return model.Consent{}, model.ReasonConsentInvalid
	}
	if httpErr != (model.HttpError{}) || storeCtx.Err() != nil {
		logger.Warnf("The consent store did not answer for %s. Err: %v", consentId, httpErr.RootError)
		return model.Consent{}, model.ReasonConsentUnavailable
	}
	if !consent.IsValid(now) {
		return model.Consent{}, model.ReasonConsentInvalid
	}

	cache.Put(consent)
	return consent, ""
}

// Put caches a consent snapshot, used on store hits and to pre-warm the
// cache right after consent creation.
func (cache *Cache) Put(consent model.Consent) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	cache.entries[consent.ConsentId] = cacheEntry{consent: consent, cachedAt: cache.clock.Now()}

	// stay inside the configured bound, dropping the least-recently-cached entry
	for len(cache.entries) > cache.capacity {
		oldestId := ""
		var oldestAt time.Time
		for id, entry := range cache.entries {
			if oldestId == "" || entry.cachedAt.Before(oldestAt) {
				oldestId = id
				oldestAt = entry.cachedAt
			}
		}
		delete(cache.entries, oldestId)
	}
}

// Invalidate drops a consent from the cache, used on revocation so a
// revoke is observed before the ttl runs out.
func (cache *Cache) Invalidate(consentId string) {
	cache.evict(consentId)
}

func (cache *Cache) lookup(consentId string, now time.Time) (model.Consent, bool) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	entry, exists := cache.entries[consentId]
	if !exists {
		return model.Consent{}, false
	}
	if now.Sub(entry.cachedAt) >= cache.ttl {
		delete(cache.entries, consentId)
		return model.Consent{}, false
	}
	return entry.consent, true
}

func (cache *Cache) evict(consentId string) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	delete(cache.entries, consentId)
}
