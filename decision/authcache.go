package decision

import (
	"strings"
	"sync"
	"time"

	"github.com/agentauth/consent-pdp/model"
)

// AuthorizationCache holds approved authorization codes until a merchant
// verifies them or they expire. Verification marks a code used under the
// cache lock, so a code can never be spent twice.
type AuthorizationCache struct {
	mutex          sync.Mutex
	authorizations map[string]model.Authorization
}

func NewAuthorizationCache() *AuthorizationCache {
	cache := new(AuthorizationCache)
	cache.authorizations = map[string]model.Authorization{}
	return cache
}

func (cache *AuthorizationCache) Insert(authorization model.Authorization) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	cache.authorizations[authorization.AuthorizationCode] = authorization
}

func (cache *AuthorizationCache) Contains(authorizationCode string) bool {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	_, exists := cache.authorizations[authorizationCode]
	return exists
}

// VerifyAndUse settles an authorization code against the presented
// transaction. On success the code is marked used and the updated record
// is returned, so the caller can persist the settlement.
func (cache *AuthorizationCache) VerifyAndUse(request model.VerifyRequest, verifiedBy string, now time.Time) (authorization model.Authorization, reason string) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	authorization, exists := cache.authorizations[request.AuthorizationCode]
	if !exists {
		return model.Authorization{}, model.ReasonCodeUnknown
	}
	if !now.Before(authorization.ExpiresAt) {
		return model.Authorization{}, model.ReasonCodeExpired
	}
	if authorization.IsUsed {
		return model.Authorization{}, model.ReasonAlreadyUsed
	}
	if !matchesTransaction(authorization, request) {
		return model.Authorization{}, model.ReasonTransactionMismatch
	}

	usedAt := now
	authorization.IsUsed = true
	authorization.UsedAt = &usedAt
	authorization.VerifiedAt = &usedAt
	authorization.VerifiedBy = verifiedBy
	cache.authorizations[request.AuthorizationCode] = authorization

	return authorization, ""
}

// PurgeExpired drops codes past their expiry, used records included.
// Used records already went through the write-behind queue, the cache
// does not have to keep them.
func (cache *AuthorizationCache) PurgeExpired(now time.Time) int {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	purged := 0
	for code, authorization := range cache.authorizations {
		if !now.Before(authorization.ExpiresAt) {
			delete(cache.authorizations, code)
			purged++
		}
	}
	return purged
}

/**
* The settling merchant has to present exactly the authorized
* transaction. The merchant id only has to match when the authorization
* was bound to one.
 */
func matchesTransaction(authorization model.Authorization, request model.VerifyRequest) bool {
	if authorization.Amount != request.Amount {
		return false
	}
	if !strings.EqualFold(authorization.Currency, request.Currency) {
		return false
	}
	if authorization.MerchantId != "" && !strings.EqualFold(authorization.MerchantId, request.MerchantId) {
		return false
	}
	return true
}
