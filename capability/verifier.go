package capability

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/agentauth/consent-pdp/model"
)

// Verifier checks a presented token against a concrete transaction. It
// is pure: all state it needs travels inside the token itself, no i/o is
// performed and no clock besides the provided context time is consulted.
type Verifier struct {
	codec *Codec
}

func NewVerifier(codec *Codec) *Verifier {
	verifier := new(Verifier)
	verifier.codec = codec
	return verifier
}

// Verify walks the chain from root to leaf. Per link it checks, in this
// order: structure, signature, expiry and finally every caveat against
// the transaction context, short-circuiting on the first failure.
func (v *Verifier) Verify(tokenString string, transaction model.TransactionContext, now time.Time) model.VerificationOutcome {
	leaf, err := v.codec.Deserialize(tokenString)
	if err != nil {
		return outcome(model.ReasonTokenMalformed, err.Error())
	}

	chain := chainRootFirst(leaf)
	root := chain[0]

	var parent *Token
	for _, link := range chain {
		if failed := v.checkStructure(link, root, parent); failed != nil {
			return *failed
		}
		if failed := v.checkSignature(link); failed != nil {
			return *failed
		}
		if failed := checkExpiry(link, now); failed != nil {
			return *failed
		}
		if failed := checkCaveats(link, transaction, now); failed != nil {
			return *failed
		}
		parent = link
	}

	return model.VerificationOutcome{
		Valid:     true,
		ConsentId: root.Claims.ConsentId,
		Principal: root.Claims.Subject,
	}
}

func (v *Verifier) checkStructure(link *Token, root *Token, parent *Token) *model.VerificationOutcome {
	if len(link.Claims.Capabilities) == 0 {
		return failure(model.ReasonTokenMalformed, "the token does not carry any capability")
	}
	if link.Claims.ExpiresAt == nil {
		return failure(model.ReasonTokenMalformed, "the token does not carry an expiry")
	}
	if link.Claims.ConsentId != root.Claims.ConsentId {
		return failure(model.ReasonTokenMalformed, "the chain references more than one consent")
	}
	if parent != nil && link.Claims.Issuer != parent.Claims.Subject {
		return failure(model.ReasonTokenMalformed, "the token was not issued by the holder of its proof")
	}
	for _, capability := range link.Claims.Capabilities {
		if capability.Resource == "" || capability.Action == "" {
			return failure(model.ReasonTokenMalformed, "the token carries a capability without resource or action")
		}
	}
	return nil
}

func (v *Verifier) checkSignature(link *Token) *model.VerificationOutcome {
	parsed, err := jwt.NewParser(jwt.WithoutClaimsValidation()).ParseWithClaims(link.Raw, &model.CapabilityClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid_token_method")
		}
		return v.codec.secret, nil
	})
	if err != nil || !parsed.Valid {
		return failure(model.ReasonTokenInvalidSignature, "the token signature could not be verified")
	}
	return nil
}

func checkExpiry(link *Token, now time.Time) *model.VerificationOutcome {
	if !now.Before(link.Claims.ExpiresAt.Time) {
		return failure(model.ReasonTokenExpired, "the token is expired")
	}
	if link.Claims.NotBefore != nil && now.Before(link.Claims.NotBefore.Time) {
		return failure(model.ReasonTokenExpired, "the token is not active yet")
	}
	return nil
}

func checkCaveats(link *Token, transaction model.TransactionContext, now time.Time) *model.VerificationOutcome {
	for _, capability := range link.Claims.Capabilities {
		caveats := capability.Caveats

		if caveats.MaxAmount != nil && transaction.Amount > *caveats.MaxAmount {
			return failure(model.ReasonAmountExceeded, fmt.Sprintf("amount %v exceeds the allowed maximum %v", transaction.Amount, *caveats.MaxAmount))
		}
		if caveats.Currency != "" && !strings.EqualFold(caveats.Currency, transaction.Currency) {
			return failure(model.ReasonCurrencyMismatch, fmt.Sprintf("currency %s does not match the granted %s", transaction.Currency, caveats.Currency))
		}
		if caveats.AllowedMerchants != nil && !containsFold(caveats.AllowedMerchants, transaction.MerchantId) {
			return failure(model.ReasonMerchantNotAllowed, fmt.Sprintf("merchant %s is not covered by the token", transaction.MerchantId))
		}
		if caveats.AllowedCategories != nil && !containsFold(caveats.AllowedCategories, transaction.MerchantCategory) {
			return failure(model.ReasonCategoryNotAllowed, fmt.Sprintf("category %s is not covered by the token", transaction.MerchantCategory))
		}
		if caveats.NotAfter != nil && now.After(caveats.NotAfter.Time) {
			return failure(model.ReasonTokenExpired, "the capability is not valid anymore")
		}
	}
	return nil
}

func chainRootFirst(leaf *Token) []*Token {
	chain := []*Token{}
	for link := leaf; link != nil; link = link.Parent {
		chain = append([]*Token{link}, chain...)
	}
	return chain
}

func outcome(reason string, message string) model.VerificationOutcome {
	return model.VerificationOutcome{Valid: false, Reason: reason, Message: message}
}

func failure(reason string, message string) *model.VerificationOutcome {
	f := outcome(reason, message)
	return &f
}
