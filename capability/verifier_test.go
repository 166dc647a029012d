package capability

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"

	"github.com/agentauth/consent-pdp/model"
)

func getTransaction(transactionAmount float64, currency string, merchant string, category string) model.TransactionContext {
	return model.TransactionContext{Amount: transactionAmount, Currency: currency, MerchantId: merchant, MerchantCategory: category}
}

func TestVerifyRootToken(t *testing.T) {
	type test struct {
		testName        string
		testCapability  model.Capability
		testTransaction model.TransactionContext
		testNow         time.Time
		expectedValid   bool
		expectedReason  string
	}

	tests := []test{
		{"Allow a transaction inside all caveats.", getCapability(amount(500), "USD", nil, nil), getTransaction(347, "USD", "acme.com", "retail"), testNow, true, ""},
		{"Allow a transaction exactly at the maximum.", getCapability(amount(500), "USD", nil, nil), getTransaction(500, "USD", "acme.com", "retail"), testNow, true, ""},
		{"Deny a transaction above the maximum.", getCapability(amount(500), "USD", nil, nil), getTransaction(600, "USD", "acme.com", "retail"), testNow, false, model.ReasonAmountExceeded},
		{"Deny a transaction in another currency.", getCapability(amount(500), "USD", nil, nil), getTransaction(100, "EUR", "acme.com", "retail"), testNow, false, model.ReasonCurrencyMismatch},
		{"Allow a merchant on the allow list.", getCapability(amount(500), "USD", []string{"acme.com"}, nil), getTransaction(100, "USD", "acme.com", "retail"), testNow, true, ""},
		{"Deny a merchant missing from the allow list.", getCapability(amount(500), "USD", []string{"acme.com"}, nil), getTransaction(100, "USD", "other.com", "retail"), testNow, false, model.ReasonMerchantNotAllowed},
		{"Deny a category missing from the allow list.", getCapability(amount(500), "USD", nil, []string{"retail"}), getTransaction(100, "USD", "acme.com", "gambling"), testNow, false, model.ReasonCategoryNotAllowed},
		{"Deny an expired token.", getCapability(amount(500), "USD", nil, nil), getTransaction(100, "USD", "acme.com", "retail"), testNow.Add(time.Hour * 2), false, model.ReasonTokenExpired},
	}

	for _, tc := range tests {
		t.Run(tc.testName, func(t *testing.T) {
			log.Infof("TestVerifyRootToken +++++++++++++++++ Running test: %s", tc.testName)
			codec := getTestCodec()
			verifier := NewVerifier(codec)

			root, err := codec.Mint("user-1", "agent-1", "cons_abc", []model.Capability{tc.testCapability}, time.Hour)
			if err != nil {
				t.Fatalf("%s: Minting failed unexpectedly. Err: %v", tc.testName, err)
			}

			verificationOutcome := verifier.Verify(codec.Serialize(root), tc.testTransaction, tc.testNow)
			if verificationOutcome.Valid != tc.expectedValid {
				t.Errorf("%s: Verification returned the wrong validity. Expected: %v, Actual: %v", tc.testName, tc.expectedValid, verificationOutcome)
			}
			if verificationOutcome.Reason != tc.expectedReason {
				t.Errorf("%s: Verification returned the wrong reason. Expected: %s, Actual: %s", tc.testName, tc.expectedReason, verificationOutcome.Reason)
			}
			if tc.expectedValid && (verificationOutcome.ConsentId != "cons_abc" || verificationOutcome.Principal != "agent-1") {
				t.Errorf("%s: A valid outcome has to carry the root consent and principal. Actual: %v", tc.testName, verificationOutcome)
			}
		})
	}
}

func TestVerifyChain(t *testing.T) {
	log.Info("TestVerifyChain +++++++++++++++++ Running test.")
	codec := getTestCodec()
	verifier := NewVerifier(codec)

	root, _ := codec.Mint("user-1", "agent-1", "cons_abc", []model.Capability{getCapability(amount(500), "USD", nil, nil)}, time.Hour)
	child, err := codec.Attenuate(root, "sub-agent-1", []model.Restriction{getRestriction(amount(100), "", nil, nil)}, time.Hour)
	if err != nil {
		t.Fatalf("Attenuation failed unexpectedly. Err: %v", err)
	}

	// inside the narrowed amount
	verificationOutcome := verifier.Verify(codec.Serialize(child), getTransaction(80, "USD", "acme.com", "retail"), testNow)
	if !verificationOutcome.Valid {
		t.Errorf("The transaction is covered by the full chain, but was denied: %v", verificationOutcome)
	}
	if verificationOutcome.Principal != "agent-1" {
		t.Errorf("The principal has to be the root subject. Actual: %s", verificationOutcome.Principal)
	}

	// inside the root but outside the attenuated leaf
	verificationOutcome = verifier.Verify(codec.Serialize(child), getTransaction(200, "USD", "acme.com", "retail"), testNow)
	if verificationOutcome.Valid || verificationOutcome.Reason != model.ReasonAmountExceeded {
		t.Errorf("The leaf caveat has to bind even when the root allows more: %v", verificationOutcome)
	}
}

func TestVerifyRejectsForgedSignature(t *testing.T) {
	log.Info("TestVerifyRejectsForgedSignature +++++++++++++++++ Running test.")
	otherCodec := NewCodec([]byte("other-secret"), testClock{now: testNow})
	verifier := NewVerifier(getTestCodec())

	forged, _ := otherCodec.Mint("user-1", "agent-1", "cons_abc", []model.Capability{getCapability(amount(500), "USD", nil, nil)}, time.Hour)

	verificationOutcome := verifier.Verify(otherCodec.Serialize(forged), getTransaction(100, "USD", "acme.com", "retail"), testNow)
	if verificationOutcome.Valid || verificationOutcome.Reason != model.ReasonTokenInvalidSignature {
		t.Errorf("A token signed with another secret has to be rejected: %v", verificationOutcome)
	}
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	log.Info("TestVerifyRejectsMalformedToken +++++++++++++++++ Running test.")
	verifier := NewVerifier(getTestCodec())

	verificationOutcome := verifier.Verify("not-a-token", getTransaction(100, "USD", "acme.com", "retail"), testNow)
	if verificationOutcome.Valid || verificationOutcome.Reason != model.ReasonTokenMalformed {
		t.Errorf("A malformed token has to be rejected: %v", verificationOutcome)
	}
}

func TestVerifyRejectsMixedConsentChain(t *testing.T) {
	log.Info("TestVerifyRejectsMixedConsentChain +++++++++++++++++ Running test.")
	codec := getTestCodec()
	verifier := NewVerifier(codec)

	root, _ := codec.Mint("user-1", "agent-1", "cons_abc", []model.Capability{getCapability(amount(500), "USD", nil, nil)}, time.Hour)

	// hand-craft a child that references a different consent
	claims := model.CapabilityClaims{
		ConsentId:    "cons_other",
		Capabilities: root.Claims.Capabilities,
		Proof:        root.Raw,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "agent-1",
			Subject:   "sub-agent-1",
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("Signing the crafted token failed. Err: %v", err)
	}

	verificationOutcome := verifier.Verify(raw, getTransaction(100, "USD", "acme.com", "retail"), testNow)
	if verificationOutcome.Valid || verificationOutcome.Reason != model.ReasonTokenMalformed {
		t.Errorf("A chain over two consents has to be rejected: %v", verificationOutcome)
	}
}

func TestVerifyRejectsBrokenDelegationLink(t *testing.T) {
	log.Info("TestVerifyRejectsBrokenDelegationLink +++++++++++++++++ Running test.")
	codec := getTestCodec()
	verifier := NewVerifier(codec)

	root, _ := codec.Mint("user-1", "agent-1", "cons_abc", []model.Capability{getCapability(amount(500), "USD", nil, nil)}, time.Hour)

	// hand-craft a child that was not issued by the holder of the root
	claims := model.CapabilityClaims{
		ConsentId:    "cons_abc",
		Capabilities: root.Claims.Capabilities,
		Proof:        root.Raw,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "some-other-agent",
			Subject:   "sub-agent-1",
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("Signing the crafted token failed. Err: %v", err)
	}

	verificationOutcome := verifier.Verify(raw, getTransaction(100, "USD", "acme.com", "retail"), testNow)
	if verificationOutcome.Valid || verificationOutcome.Reason != model.ReasonTokenMalformed {
		t.Errorf("A child issued by someone else than the parents holder has to be rejected: %v", verificationOutcome)
	}
}

func TestVerifyNotAfterCaveat(t *testing.T) {
	log.Info("TestVerifyNotAfterCaveat +++++++++++++++++ Running test.")
	codec := getTestCodec()
	verifier := NewVerifier(codec)

	capabilityWithWindow := model.Capability{Resource: "payments", Action: "authorize", Caveats: model.Caveats{MaxAmount: amount(500), Currency: "USD", NotAfter: jwt.NewNumericDate(testNow.Add(time.Minute * 10))}}
	root, _ := codec.Mint("user-1", "agent-1", "cons_abc", []model.Capability{capabilityWithWindow}, time.Hour)

	verificationOutcome := verifier.Verify(codec.Serialize(root), getTransaction(100, "USD", "acme.com", "retail"), testNow.Add(time.Minute*20))
	if verificationOutcome.Valid || verificationOutcome.Reason != model.ReasonTokenExpired {
		t.Errorf("A transaction after the notAfter caveat has to be rejected: %v", verificationOutcome)
	}
}
