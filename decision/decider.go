package decision

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/agentauth/consent-pdp/capability"
	"github.com/agentauth/consent-pdp/consent"
	"github.com/agentauth/consent-pdp/model"
	"github.com/agentauth/consent-pdp/rules"
	"github.com/agentauth/consent-pdp/webhook"
)

const authorizationCodePrefix = "authz_"

// Decider runs the full decision pipeline: delegation chain first, then
// consent, then the deterministic rules. The first failing check decides,
// later checks are not evaluated.
type Decider struct {
	verifier   *capability.Verifier
	consents   *consent.Cache
	engine     *rules.Engine
	cache      *AuthorizationCache
	queue      *WriteBehindQueue
	emitter    webhook.Emitter
	clock      capability.Clock
	codeExpiry time.Duration
}

func NewDecider(verifier *capability.Verifier, consents *consent.Cache, engine *rules.Engine, cache *AuthorizationCache, queue *WriteBehindQueue, emitter webhook.Emitter, clock capability.Clock, codeExpiry time.Duration) *Decider {
	decider := new(Decider)
	decider.verifier = verifier
	decider.consents = consents
	decider.engine = engine
	decider.cache = cache
	decider.queue = queue
	decider.emitter = emitter
	decider.clock = clock
	decider.codeExpiry = codeExpiry
	return decider
}

func (decider *Decider) Decide(ctx context.Context, request model.AuthorizeRequest) (response model.AuthorizeResponse, httpErr model.HttpError) {
	if request.Token == "" {
		return response, model.HttpError{Status: http.StatusBadRequest, Message: "A delegation token is required.", RootError: nil}
	}
	if request.Transaction.Amount <= 0 || request.Transaction.Currency == "" {
		return response, model.HttpError{Status: http.StatusBadRequest, Message: "A transaction requires a positive amount and a currency.", RootError: nil}
	}

	now := decider.clock.Now()

	outcome := decider.verifier.Verify(request.Token, request.Transaction, now)
	if !outcome.Valid {
		return decider.deny(request, "", outcome.Reason, outcome.Message, now), httpErr
	}

	activeConsent, consentReason := decider.consents.GetValidConsent(ctx, outcome.ConsentId)
	if consentReason != "" {
		return decider.deny(request, outcome.ConsentId, consentReason, "The consent does not cover the transaction anymore.", now), httpErr
	}

	ruleDecision, httpErr := decider.engine.Evaluate(rules.Request{
		UserId:   activeConsent.UserId,
		Amount:   request.Transaction.Amount,
		Merchant: request.Transaction.MerchantId,
		Category: request.Transaction.MerchantCategory,
		Now:      now,
	})
	if httpErr != (model.HttpError{}) {
		return response, httpErr
	}
	if !ruleDecision.Allowed {
		decider.emitRuleEvents(activeConsent.UserId, ruleDecision.Reason, request.Transaction)
		return decider.deny(request, outcome.ConsentId, ruleDecision.Reason, ruleDecision.Message, now), httpErr
	}

	if ruleDecision.RequiresHumanApproval || activeConsent.Scope.RequiresConfirmation {
		return decider.stepUp(request, outcome.ConsentId, now), httpErr
	}

	return decider.approve(request, outcome.ConsentId, now)
}

// VerifyCode settles an authorization code on behalf of a merchant.
func (decider *Decider) VerifyCode(request model.VerifyRequest, verifiedBy string) model.VerifyResponse {
	authorization, reason := decider.cache.VerifyAndUse(request, verifiedBy, decider.clock.Now())
	if reason != "" {
		return model.VerifyResponse{Valid: false, Reason: reason}
	}

	// persist the settlement
	decider.queue.Enqueue(authorization)

	return model.VerifyResponse{
		Valid: true,
		ConsentProof: &model.ConsentProof{
			ConsentId:    authorization.ConsentId,
			Amount:       authorization.Amount,
			Currency:     authorization.Currency,
			AuthorizedAt: authorization.CreatedAt,
		},
	}
}

func (decider *Decider) approve(request model.AuthorizeRequest, consentId string, now time.Time) (model.AuthorizeResponse, model.HttpError) {
	code, err := decider.newAuthorizationCode()
	if err != nil {
		logger.Warnf("Was not able to generate an authorization code. Err: %v", err)
		return model.AuthorizeResponse{}, model.HttpError{Status: http.StatusInternalServerError, Message: "Was not able to generate an authorization code.", RootError: err}
	}

	authorization := decider.record(request, consentId, model.DecisionAllow, "", now)
	authorization.AuthorizationCode = code
	authorization.ExpiresAt = now.Add(decider.codeExpiry)

	decider.cache.Insert(authorization)
	decider.queue.Enqueue(authorization)
	decider.emitter.Emit(webhook.EventAuthorizationApproved, authorization)

	expiresAt := authorization.ExpiresAt
	return model.AuthorizeResponse{
		Decision:          model.DecisionAllow,
		AuthorizationCode: authorization.AuthorizationCode,
		ConsentId:         consentId,
		ExpiresAt:         &expiresAt,
	}, model.HttpError{}
}

func (decider *Decider) stepUp(request model.AuthorizeRequest, consentId string, now time.Time) model.AuthorizeResponse {
	authorization := decider.record(request, consentId, model.DecisionStepUp, "", now)
	decider.queue.Enqueue(authorization)
	decider.emitter.Emit(webhook.EventAuthorizationStepUp, authorization)

	return model.AuthorizeResponse{
		Decision:  model.DecisionStepUp,
		ConsentId: consentId,
		Message:   "The transaction requires human approval.",
	}
}

func (decider *Decider) deny(request model.AuthorizeRequest, consentId string, reason string, message string, now time.Time) model.AuthorizeResponse {
	authorization := decider.record(request, consentId, model.DecisionDeny, reason, now)
	decider.queue.Enqueue(authorization)
	decider.emitter.Emit(webhook.EventAuthorizationDenied, authorization)

	return model.AuthorizeResponse{
		Decision:  model.DecisionDeny,
		Reason:    reason,
		Message:   message,
		ConsentId: consentId,
	}
}

func (decider *Decider) record(request model.AuthorizeRequest, consentId string, decision string, reason string, now time.Time) model.Authorization {
	return model.Authorization{
		Id:               uuid.NewString(),
		ConsentId:        consentId,
		Decision:         decision,
		DenialReason:     reason,
		Amount:           request.Transaction.Amount,
		Currency:         request.Transaction.Currency,
		MerchantId:       request.Transaction.MerchantId,
		MerchantCategory: request.Transaction.MerchantCategory,
		Action:           consent.AuthorizeAction,
		CreatedAt:        now,
		ExpiresAt:        now,
	}
}

func (decider *Decider) emitRuleEvents(userId string, reason string, transaction model.TransactionContext) {
	payload := map[string]interface{}{"userId": userId, "reason": reason, "transaction": transaction}
	switch reason {
	case model.ReasonPerTransactionLimit, model.ReasonDailyLimitExceeded, model.ReasonMonthlyLimitExceeded:
		decider.emitter.Emit(webhook.EventLimitExceeded, payload)
	case model.ReasonMerchantNotAllowed, model.ReasonCategoryNotAllowed:
		decider.emitter.Emit(webhook.EventRuleTriggered, payload)
	}
}

/**
* Codes are unguessable and never collide with a live code.
 */
func (decider *Decider) newAuthorizationCode() (string, error) {
	for {
		randomBytes := make([]byte, 16)
		if _, err := rand.Read(randomBytes); err != nil {
			return "", err
		}
		code := authorizationCodePrefix + base64.RawURLEncoding.EncodeToString(randomBytes)
		if !decider.cache.Contains(code) {
			return code, nil
		}
	}
}
