package consent

import (
	"context"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/agentauth/consent-pdp/capability"
	"github.com/agentauth/consent-pdp/model"
)

func getTestService(repo Repository, clock *testClock) (*Service, *Cache, *capability.Codec) {
	codec := capability.NewCodec([]byte("test-secret"), clock)
	cache := getTestCache(repo, 10, clock)
	return NewService(repo, cache, codec, clock, time.Hour), cache, codec
}

func getCreateRequest() model.CreateConsentRequest {
	return model.CreateConsentRequest{
		UserId:            "user-1",
		AgentId:           "agent-1",
		IntentDescription: "Book a flight to Lisbon",
		Constraints:       model.ConsentConstraints{MaxAmount: 500, Currency: "USD", AllowedMerchants: []string{"acme.com"}},
	}
}

func TestCreateConsent(t *testing.T) {
	log.Info("TestCreateConsent +++++++++++++++++ Running test.")
	clock := &testClock{now: testNow}
	repo := NewInMemoryRepo()
	service, cache, codec := getTestService(repo, clock)

	response, httpErr := service.CreateConsent(context.Background(), getCreateRequest())
	if httpErr != (model.HttpError{}) {
		t.Fatalf("Consent creation failed unexpectedly. Err: %v", httpErr)
	}

	if !strings.HasPrefix(response.Consent.ConsentId, "cons_") {
		t.Errorf("Consent ids carry the cons_ prefix, got %s.", response.Consent.ConsentId)
	}
	if response.Consent.IntentHash == "" || response.Consent.IntentHash == response.Consent.IntentDescription {
		t.Errorf("The intent has to be stored as a hash, got %s.", response.Consent.IntentHash)
	}
	if !response.Consent.ExpiresAt.Equal(testNow.Add(time.Hour)) {
		t.Errorf("The default validity was not applied. Actual: %v", response.Consent.ExpiresAt)
	}

	// the minted token has to reflect the consented constraints
	token, err := codec.Deserialize(response.Token)
	if err != nil {
		t.Fatalf("The minted token could not be deserialized. Err: %v", err)
	}
	if token.Claims.ConsentId != response.Consent.ConsentId {
		t.Errorf("The token references the wrong consent: %s", token.Claims.ConsentId)
	}
	if token.Claims.Subject != "agent-1" {
		t.Errorf("The token has to be issued to the agent, got %s.", token.Claims.Subject)
	}
	caveats := token.Claims.Capabilities[0].Caveats
	if caveats.MaxAmount == nil || *caveats.MaxAmount != 500 || caveats.Currency != "USD" {
		t.Errorf("The token caveats do not match the constraints: %v", caveats)
	}

	// the cache is pre-warmed, no store round trip needed
	cached, reason := cache.GetValidConsent(context.Background(), response.Consent.ConsentId)
	if reason != "" || cached.ConsentId != response.Consent.ConsentId {
		t.Errorf("The consent should be answerable from the cache, got reason %s.", reason)
	}
}

func TestCreateConsentValidation(t *testing.T) {
	type test struct {
		testName    string
		testRequest model.CreateConsentRequest
	}

	missingUser := getCreateRequest()
	missingUser.UserId = ""
	missingAgent := getCreateRequest()
	missingAgent.AgentId = ""
	missingAmount := getCreateRequest()
	missingAmount.Constraints.MaxAmount = 0
	missingCurrency := getCreateRequest()
	missingCurrency.Constraints.Currency = ""

	tests := []test{
		{"Fail without a user.", missingUser},
		{"Fail without an agent.", missingAgent},
		{"Fail without a positive maximum amount.", missingAmount},
		{"Fail without a currency.", missingCurrency},
	}

	for _, tc := range tests {
		t.Run(tc.testName, func(t *testing.T) {
			log.Infof("TestCreateConsentValidation +++++++++++++++++ Running test: %s", tc.testName)
			service, _, _ := getTestService(NewInMemoryRepo(), &testClock{now: testNow})

			_, httpErr := service.CreateConsent(context.Background(), tc.testRequest)
			if httpErr.Status != 400 {
				t.Errorf("%s: Creation should have been rejected, got %v.", tc.testName, httpErr)
			}
		})
	}
}

func TestRevokeConsent(t *testing.T) {
	log.Info("TestRevokeConsent +++++++++++++++++ Running test.")
	clock := &testClock{now: testNow}
	repo := NewInMemoryRepo()
	service, cache, _ := getTestService(repo, clock)

	response, httpErr := service.CreateConsent(context.Background(), getCreateRequest())
	if httpErr != (model.HttpError{}) {
		t.Fatalf("Consent creation failed unexpectedly. Err: %v", httpErr)
	}

	if httpErr := service.RevokeConsent(context.Background(), response.Consent.ConsentId); httpErr != (model.HttpError{}) {
		t.Fatalf("Revocation failed unexpectedly. Err: %v", httpErr)
	}

	// the revocation has to be visible immediately, not after the cache ttl
	_, reason := cache.GetValidConsent(context.Background(), response.Consent.ConsentId)
	if reason != model.ReasonConsentInvalid {
		t.Errorf("A revoked consent must not be served anymore, got reason %s.", reason)
	}

	stored, httpErr := service.GetConsent(context.Background(), response.Consent.ConsentId)
	if httpErr != (model.HttpError{}) {
		t.Fatalf("A revoked consent is still readable. Err: %v", httpErr)
	}
	if stored.Active || stored.RevokedAt == nil {
		t.Errorf("The revocation was not persisted: %v", stored)
	}
}
