package decision

import (
	"context"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/agentauth/consent-pdp/capability"
	"github.com/agentauth/consent-pdp/consent"
	"github.com/agentauth/consent-pdp/model"
	"github.com/agentauth/consent-pdp/rules"
)

type mockEmitter struct {
	events []string
}

func (emitter *mockEmitter) Emit(eventType string, payload interface{}) {
	emitter.events = append(emitter.events, eventType)
}

func (emitter *mockEmitter) emitted(eventType string) bool {
	for _, event := range emitter.events {
		if event == eventType {
			return true
		}
	}
	return false
}

type testPipeline struct {
	decider        *Decider
	consentService *consent.Service
	codec          *capability.Codec
	emitter        *mockEmitter
	store          *InMemoryStore
	queue          *WriteBehindQueue
}

func getTestPipeline(limit model.SpendingLimit, merchantRules []model.MerchantRule) testPipeline {
	clock := capability.RealClock{}
	codec := capability.NewCodec([]byte("test-secret"), clock)
	verifier := capability.NewVerifier(codec)

	consentRepo := consent.NewInMemoryRepo()
	consentCache := consent.NewCache(consentRepo, time.Minute*5, 100, time.Millisecond*500, clock)
	consentService := consent.NewService(consentRepo, consentCache, codec, clock, time.Hour)

	ruleRepo := rules.NewInMemoryRepo()
	ruleRepo.PutSpendingLimit(limit)
	for _, rule := range merchantRules {
		ruleRepo.CreateMerchantRule(rule)
	}
	engine := rules.NewEngine(ruleRepo, rules.NewUsageTracker())

	store := NewInMemoryStore()
	queue := NewWriteBehindQueue(store, 100, 10)
	emitter := &mockEmitter{}

	decider := NewDecider(verifier, consentCache, engine, NewAuthorizationCache(), queue, emitter, clock, time.Minute*5)
	return testPipeline{decider: decider, consentService: consentService, codec: codec, emitter: emitter, store: store, queue: queue}
}

func getDefaultLimit() model.SpendingLimit {
	return model.SpendingLimit{UserId: "user-1", PerTransactionLimit: 500, DailyLimit: 1000, MonthlyLimit: 10000, Active: true, CreatedAt: time.Now(), UpdatedAt: time.Now()}
}

func (pipeline testPipeline) createConsent(t *testing.T) model.CreateConsentResponse {
	response, httpErr := pipeline.consentService.CreateConsent(context.Background(), model.CreateConsentRequest{
		UserId:            "user-1",
		AgentId:           "agent-1",
		IntentDescription: "Book a flight to Lisbon",
		Constraints:       model.ConsentConstraints{MaxAmount: 500, Currency: "USD"},
	})
	if httpErr != (model.HttpError{}) {
		t.Fatalf("Consent creation failed unexpectedly. Err: %v", httpErr)
	}
	return response
}

func getAuthorizeRequest(token string, amount float64, merchant string) model.AuthorizeRequest {
	return model.AuthorizeRequest{Token: token, Transaction: model.TransactionContext{Amount: amount, Currency: "USD", MerchantId: merchant, MerchantCategory: "retail"}}
}

func TestDecideWithinConsent(t *testing.T) {
	log.Info("TestDecideWithinConsent +++++++++++++++++ Running test.")
	pipeline := getTestPipeline(getDefaultLimit(), nil)
	created := pipeline.createConsent(t)

	response, httpErr := pipeline.decider.Decide(context.Background(), getAuthorizeRequest(created.Token, 347, "acme.com"))
	if httpErr != (model.HttpError{}) {
		t.Fatalf("The decision failed unexpectedly. Err: %v", httpErr)
	}
	if response.Decision != model.DecisionAllow {
		t.Fatalf("A covered transaction has to be allowed: %v", response)
	}
	if !strings.HasPrefix(response.AuthorizationCode, "authz_") {
		t.Errorf("Authorization codes carry the authz_ prefix, got %s.", response.AuthorizationCode)
	}
	if response.ConsentId != created.Consent.ConsentId {
		t.Errorf("The decision references the wrong consent: %s", response.ConsentId)
	}
	if response.ExpiresAt == nil {
		t.Errorf("An approved decision has to carry the code expiry.")
	}
	if !pipeline.emitter.emitted("authorization.approved") {
		t.Errorf("An approved decision has to emit its event, got %v.", pipeline.emitter.events)
	}
	if pipeline.queue.Len() != 1 {
		t.Errorf("One audit record should be queued, got %d.", pipeline.queue.Len())
	}
}

func TestDecideAboveConsentAmount(t *testing.T) {
	log.Info("TestDecideAboveConsentAmount +++++++++++++++++ Running test.")
	pipeline := getTestPipeline(getDefaultLimit(), nil)
	created := pipeline.createConsent(t)

	response, httpErr := pipeline.decider.Decide(context.Background(), getAuthorizeRequest(created.Token, 600, "acme.com"))
	if httpErr != (model.HttpError{}) {
		t.Fatalf("The decision failed unexpectedly. Err: %v", httpErr)
	}
	if response.Decision != model.DecisionDeny || response.Reason != model.ReasonAmountExceeded {
		t.Errorf("An amount above the consented maximum has to be denied: %v", response)
	}
	if response.AuthorizationCode != "" {
		t.Errorf("A denied decision must not carry a code.")
	}
	if !pipeline.emitter.emitted("authorization.denied") {
		t.Errorf("A denied decision has to emit its event, got %v.", pipeline.emitter.events)
	}
}

func TestDecideAttenuatedToken(t *testing.T) {
	log.Info("TestDecideAttenuatedToken +++++++++++++++++ Running test.")
	pipeline := getTestPipeline(getDefaultLimit(), nil)
	created := pipeline.createConsent(t)

	parent, _ := pipeline.codec.Deserialize(created.Token)
	narrowedAmount := 100.0
	child, err := pipeline.codec.Attenuate(parent, "sub-agent-1", []model.Restriction{{Resource: "payments", Action: "authorize", Caveats: model.Caveats{MaxAmount: &narrowedAmount}}}, time.Minute*30)
	if err != nil {
		t.Fatalf("Attenuation failed unexpectedly. Err: %v", err)
	}

	response, _ := pipeline.decider.Decide(context.Background(), getAuthorizeRequest(pipeline.codec.Serialize(child), 80, "acme.com"))
	if response.Decision != model.DecisionAllow {
		t.Errorf("A transaction inside the narrowed caveats has to be allowed: %v", response)
	}

	response, _ = pipeline.decider.Decide(context.Background(), getAuthorizeRequest(pipeline.codec.Serialize(child), 200, "acme.com"))
	if response.Decision != model.DecisionDeny || response.Reason != model.ReasonAmountExceeded {
		t.Errorf("The narrowed caveat has to bind even though the root allows more: %v", response)
	}
}

func TestDecideBlockedMerchant(t *testing.T) {
	log.Info("TestDecideBlockedMerchant +++++++++++++++++ Running test.")
	blockRule := model.MerchantRule{Id: "rule-1", UserId: "user-1", MerchantPattern: "*.gambling.com", Action: model.RuleActionBlock, Active: true, CreatedAt: time.Now()}
	pipeline := getTestPipeline(getDefaultLimit(), []model.MerchantRule{blockRule})
	created := pipeline.createConsent(t)

	response, _ := pipeline.decider.Decide(context.Background(), getAuthorizeRequest(created.Token, 100, "lucky.gambling.com"))
	if response.Decision != model.DecisionDeny || response.Reason != model.ReasonMerchantNotAllowed {
		t.Errorf("A blocked merchant has to be denied: %v", response)
	}
	if !pipeline.emitter.emitted("rule.triggered") {
		t.Errorf("A rule deny has to emit rule.triggered, got %v.", pipeline.emitter.events)
	}
}

func TestDecideStepUp(t *testing.T) {
	log.Info("TestDecideStepUp +++++++++++++++++ Running test.")
	limit := getDefaultLimit()
	approvalAbove := 100.0
	limit.RequireApprovalAbove = &approvalAbove
	pipeline := getTestPipeline(limit, nil)
	created := pipeline.createConsent(t)

	response, _ := pipeline.decider.Decide(context.Background(), getAuthorizeRequest(created.Token, 150, "acme.com"))
	if response.Decision != model.DecisionStepUp {
		t.Fatalf("A transaction above the approval threshold needs a step up: %v", response)
	}
	if response.AuthorizationCode != "" {
		t.Errorf("A step up must not hand out a code.")
	}
	if !pipeline.emitter.emitted("authorization.step_up") {
		t.Errorf("A step up has to emit its event, got %v.", pipeline.emitter.events)
	}
}

func TestDecideRevokedConsent(t *testing.T) {
	log.Info("TestDecideRevokedConsent +++++++++++++++++ Running test.")
	pipeline := getTestPipeline(getDefaultLimit(), nil)
	created := pipeline.createConsent(t)

	if httpErr := pipeline.consentService.RevokeConsent(context.Background(), created.Consent.ConsentId); httpErr != (model.HttpError{}) {
		t.Fatalf("Revocation failed unexpectedly. Err: %v", httpErr)
	}

	response, _ := pipeline.decider.Decide(context.Background(), getAuthorizeRequest(created.Token, 100, "acme.com"))
	if response.Decision != model.DecisionDeny || response.Reason != model.ReasonConsentInvalid {
		t.Errorf("The token may still verify, but a revoked consent has to deny: %v", response)
	}
}

func TestDecideLimitEvents(t *testing.T) {
	log.Info("TestDecideLimitEvents +++++++++++++++++ Running test.")
	limit := getDefaultLimit()
	limit.PerTransactionLimit = 200
	pipeline := getTestPipeline(limit, nil)
	created := pipeline.createConsent(t)

	response, _ := pipeline.decider.Decide(context.Background(), getAuthorizeRequest(created.Token, 300, "acme.com"))
	if response.Reason != model.ReasonPerTransactionLimit {
		t.Fatalf("The per-transaction limit has to deny first: %v", response)
	}
	if !pipeline.emitter.emitted("limit.exceeded") {
		t.Errorf("A limit deny has to emit limit.exceeded, got %v.", pipeline.emitter.events)
	}
}

func TestVerifyCode(t *testing.T) {
	log.Info("TestVerifyCode +++++++++++++++++ Running test.")
	pipeline := getTestPipeline(getDefaultLimit(), nil)
	created := pipeline.createConsent(t)

	response, _ := pipeline.decider.Decide(context.Background(), getAuthorizeRequest(created.Token, 347, "acme.com"))
	if response.Decision != model.DecisionAllow {
		t.Fatalf("The setup decision has to be allowed: %v", response)
	}

	verifyRequest := model.VerifyRequest{AuthorizationCode: response.AuthorizationCode, Amount: 347, Currency: "USD", MerchantId: "acme.com"}

	verifyResponse := pipeline.decider.VerifyCode(verifyRequest, "acme.com")
	if !verifyResponse.Valid {
		t.Fatalf("The first settlement has to succeed: %v", verifyResponse)
	}
	if verifyResponse.ConsentProof == nil || verifyResponse.ConsentProof.ConsentId != created.Consent.ConsentId {
		t.Errorf("The settlement has to carry the consent proof: %v", verifyResponse)
	}

	// the code is single-use
	verifyResponse = pipeline.decider.VerifyCode(verifyRequest, "acme.com")
	if verifyResponse.Valid || verifyResponse.Reason != model.ReasonAlreadyUsed {
		t.Errorf("A second settlement has to be rejected: %v", verifyResponse)
	}
}

func TestVerifyCodeMismatches(t *testing.T) {
	type test struct {
		testName       string
		testRequest    model.VerifyRequest
		expectedReason string
	}

	pipeline := getTestPipeline(getDefaultLimit(), nil)
	created := pipeline.createConsent(t)
	response, _ := pipeline.decider.Decide(context.Background(), getAuthorizeRequest(created.Token, 347, "acme.com"))

	tests := []test{
		{"Reject an unknown code.", model.VerifyRequest{AuthorizationCode: "authz_unknown", Amount: 347, Currency: "USD", MerchantId: "acme.com"}, model.ReasonCodeUnknown},
		{"Reject a different amount.", model.VerifyRequest{AuthorizationCode: response.AuthorizationCode, Amount: 400, Currency: "USD", MerchantId: "acme.com"}, model.ReasonTransactionMismatch},
		{"Reject a different currency.", model.VerifyRequest{AuthorizationCode: response.AuthorizationCode, Amount: 347, Currency: "EUR", MerchantId: "acme.com"}, model.ReasonTransactionMismatch},
		{"Reject a different merchant.", model.VerifyRequest{AuthorizationCode: response.AuthorizationCode, Amount: 347, Currency: "USD", MerchantId: "other.com"}, model.ReasonTransactionMismatch},
	}

	for _, tc := range tests {
		t.Run(tc.testName, func(t *testing.T) {
			log.Infof("TestVerifyCodeMismatches +++++++++++++++++ Running test: %s", tc.testName)
			verifyResponse := pipeline.decider.VerifyCode(tc.testRequest, tc.testRequest.MerchantId)
			if verifyResponse.Valid || verifyResponse.Reason != tc.expectedReason {
				t.Errorf("%s: The settlement returned the wrong outcome. Expected: %s, Actual: %v", tc.testName, tc.expectedReason, verifyResponse)
			}
		})
	}
}

func TestVerifyExpiredCode(t *testing.T) {
	log.Info("TestVerifyExpiredCode +++++++++++++++++ Running test.")
	cache := NewAuthorizationCache()
	expired := model.Authorization{AuthorizationCode: "authz_old", ConsentId: "cons_abc", Decision: model.DecisionAllow, Amount: 100, Currency: "USD", CreatedAt: time.Now().Add(-time.Hour), ExpiresAt: time.Now().Add(-time.Minute * 30)}
	cache.Insert(expired)

	_, reason := cache.VerifyAndUse(model.VerifyRequest{AuthorizationCode: "authz_old", Amount: 100, Currency: "USD"}, "acme.com", time.Now())
	if reason != model.ReasonCodeExpired {
		t.Errorf("An expired code has to be rejected, got %s.", reason)
	}

	if purged := cache.PurgeExpired(time.Now()); purged != 1 {
		t.Errorf("The expired code should have been purged, got %d.", purged)
	}
}
