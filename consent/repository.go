package consent

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/agentauth/consent-pdp/logging"
	"github.com/agentauth/consent-pdp/model"
)

var logger = logging.Log()

// Repository is the durable consent store. The cache falls through to it
// on a miss; all calls are bounded by the callers context.
type Repository interface {
	CreateConsent(ctx context.Context, consent model.Consent) model.HttpError
	GetConsent(ctx context.Context, consentId string) (consent model.Consent, httpErr model.HttpError)
	GetActiveConsent(ctx context.Context, consentId string) (consent model.Consent, httpErr model.HttpError)
	RevokeConsent(ctx context.Context, consentId string, revokedAt time.Time) model.HttpError
}

/**
* Quick in-memory implementation of the consent repository. Should only be used for dev and testing, does not have any persistence.
 */
type InMemoryRepo struct {
	mutex    sync.RWMutex
	consents map[string]model.Consent
}

func NewInMemoryRepo() *InMemoryRepo {
	repo := new(InMemoryRepo)
	repo.consents = map[string]model.Consent{}
	return repo
}

func (repo *InMemoryRepo) CreateConsent(ctx context.Context, consent model.Consent) (httpErr model.HttpError) {
	if consent.ConsentId == "" {
		return model.HttpError{Status: http.StatusBadRequest, Message: "A consent requires an id.", RootError: nil}
	}
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	if _, exists := repo.consents[consent.ConsentId]; exists {
		logger.Warnf("Consent %s already exists.", consent.ConsentId)
		return model.HttpError{Status: http.StatusConflict, Message: "Consent already exists.", RootError: nil}
	}
	repo.consents[consent.ConsentId] = consent
	return httpErr
}

func (repo *InMemoryRepo) GetConsent(ctx context.Context, consentId string) (consent model.Consent, httpErr model.HttpError) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	consent, exists := repo.consents[consentId]
	if !exists {
		return consent, model.HttpError{Status: http.StatusNotFound, Message: "Consent not found.", RootError: nil}
	}
	return consent, httpErr
}

func (repo *InMemoryRepo) GetActiveConsent(ctx context.Context, consentId string) (consent model.Consent, httpErr model.HttpError) {
	consent, httpErr = repo.GetConsent(ctx, consentId)
	if httpErr != (model.HttpError{}) {
		return consent, httpErr
	}
	if !consent.IsValid(time.Now()) {
		return model.Consent{}, model.HttpError{Status: http.StatusNotFound, Message: "Consent is not active.", RootError: nil}
	}
	return consent, httpErr
}

func (repo *InMemoryRepo) RevokeConsent(ctx context.Context, consentId string, revokedAt time.Time) (httpErr model.HttpError) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	consent, exists := repo.consents[consentId]
	if !exists {
		return model.HttpError{Status: http.StatusNotFound, Message: "Consent not found.", RootError: nil}
	}
	consent.RevokedAt = &revokedAt
	consent.Active = false
	repo.consents[consentId] = consent
	return httpErr
}
