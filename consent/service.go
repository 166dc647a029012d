package consent

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/agentauth/consent-pdp/capability"
	"github.com/agentauth/consent-pdp/model"
)

const consentIdPrefix = "cons_"

// PaymentsResource is the resource all payment capabilities delegate over.
const PaymentsResource = "payments"

// AuthorizeAction is the action a payment capability grants.
const AuthorizeAction = "authorize"

// Service owns the consent lifecycle. Creating a consent also mints the
// root delegation token handed to the agent, so the two can never drift
// apart.
type Service struct {
	repo            Repository
	cache           *Cache
	codec           *capability.Codec
	clock           capability.Clock
	defaultValidity time.Duration
}

func NewService(repo Repository, cache *Cache, codec *capability.Codec, clock capability.Clock, defaultValidity time.Duration) *Service {
	service := new(Service)
	service.repo = repo
	service.cache = cache
	service.codec = codec
	service.clock = clock
	service.defaultValidity = defaultValidity
	return service
}

func (service *Service) CreateConsent(ctx context.Context, request model.CreateConsentRequest) (response model.CreateConsentResponse, httpErr model.HttpError) {
	if request.UserId == "" || request.AgentId == "" {
		return response, model.HttpError{Status: http.StatusBadRequest, Message: "A consent requires a user and an agent.", RootError: nil}
	}
	if request.Constraints.MaxAmount <= 0 || request.Constraints.Currency == "" {
		return response, model.HttpError{Status: http.StatusBadRequest, Message: "A consent requires a positive maximum amount and a currency.", RootError: nil}
	}

	validity := service.defaultValidity
	if request.ValiditySeconds > 0 {
		validity = time.Duration(request.ValiditySeconds) * time.Second
	}

	consentId, err := newConsentId()
	if err != nil {
		logger.Warnf("Was not able to generate a consent id. Err: %v", err)
		return response, model.HttpError{Status: http.StatusInternalServerError, Message: "Was not able to generate a consent id.", RootError: err}
	}

	now := service.clock.Now()
	consent := model.Consent{
		ConsentId:         consentId,
		UserId:            request.UserId,
		IntentDescription: request.IntentDescription,
		IntentHash:        hashIntent(request.IntentDescription),
		Constraints:       request.Constraints,
		Scope:             request.Scope,
		CreatedAt:         now,
		ExpiresAt:         now.Add(validity),
		Active:            true,
	}

	if httpErr := service.repo.CreateConsent(ctx, consent); httpErr != (model.HttpError{}) {
		logger.Warnf("Was not able to persist consent for user %s. Err: %v", request.UserId, httpErr.RootError)
		return response, httpErr
	}

	token, err := service.codec.Mint(request.UserId, request.AgentId, consent.ConsentId, rootCapabilities(consent), validity)
	if err != nil {
		logger.Warnf("Was not able to mint the root token for consent %s. Err: %v", consent.ConsentId, err)
		return response, model.HttpError{Status: http.StatusInternalServerError, Message: "Was not able to mint the delegation token.", RootError: err}
	}

	service.cache.Put(consent)

	return model.CreateConsentResponse{Consent: consent, Token: service.codec.Serialize(token)}, model.HttpError{}
}

func (service *Service) GetConsent(ctx context.Context, consentId string) (model.Consent, model.HttpError) {
	return service.repo.GetConsent(ctx, consentId)
}

func (service *Service) RevokeConsent(ctx context.Context, consentId string) model.HttpError {
	httpErr := service.repo.RevokeConsent(ctx, consentId, service.clock.Now())
	if httpErr != (model.HttpError{}) {
		return httpErr
	}
	// the revocation has to be observable before the cache ttl runs out
	service.cache.Invalidate(consentId)
	return model.HttpError{}
}

/**
* The root token carries exactly the caveats the user consented to. Every
* later attenuation can only narrow them.
 */
func rootCapabilities(consent model.Consent) []model.Capability {
	maxAmount := consent.Constraints.MaxAmount
	return []model.Capability{
		{
			Resource: PaymentsResource,
			Action:   AuthorizeAction,
			Caveats: model.Caveats{
				MaxAmount:         &maxAmount,
				Currency:          consent.Constraints.Currency,
				AllowedMerchants:  consent.Constraints.AllowedMerchants,
				AllowedCategories: consent.Constraints.AllowedCategories,
			},
		},
	}
}

func newConsentId() (string, error) {
	randomBytes := make([]byte, 16)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return consentIdPrefix + base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

func hashIntent(intent string) string {
	digest := sha256.Sum256([]byte(intent))
	return hex.EncodeToString(digest[:])
}
