package capability

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/agentauth/consent-pdp/logging"
	"github.com/agentauth/consent-pdp/model"
)

var logger = logging.Log()

/**
* Returned when a token or one of its capabilities is internally inconsistent.
 */
var ErrCapabilityMalformed = errors.New("capability_malformed")

// EscalationError indicates an attenuation that tried to exceed the
// authority of its parent. This is a security error, never a business
// denial, and is rejected before a bad token is ever minted.
type EscalationError struct {
	Detail string
}

func (e *EscalationError) Error() string {
	return fmt.Sprintf("capability_escalation: %s", e.Detail)
}

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (c RealClock) Now() time.Time {
	return time.Now()
}

// Token is one link of a delegation chain. Parent holds the decoded
// proof chain, Raw the exact serialized form of this link. Tokens are
// immutable once minted, attenuation always produces a new token.
type Token struct {
	Raw    string
	Claims model.CapabilityClaims
	Parent *Token
}

// Codec mints, attenuates and (de)serializes capability tokens. Every
// link is an HS256-signed JWT carrying its parent in the prf claim, so
// the serialized leaf is self-describing for the whole chain.
type Codec struct {
	secret []byte
	clock  Clock
}

func NewCodec(secret []byte, clock Clock) *Codec {
	codec := new(Codec)
	codec.secret = secret
	codec.clock = clock
	return codec
}

// Mint builds and signs a root token for the given consent.
func (codec *Codec) Mint(issuer string, principal string, consentId string, capabilities []model.Capability, validity time.Duration) (*Token, error) {
	if consentId == "" {
		return nil, fmt.Errorf("%w: a root token requires a consent id", ErrCapabilityMalformed)
	}
	if err := validateCapabilities(capabilities); err != nil {
		return nil, err
	}

	now := codec.clock.Now()
	claims := model.CapabilityClaims{
		ConsentId:    consentId,
		Capabilities: capabilities,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   principal,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
	}
	return codec.sign(claims, nil)
}

// Attenuate derives a narrower token from parent. The effective caveat
// set of the result is the intersection of the parents capabilities and
// the given restrictions; any restriction that would widen the parents
// authority is rejected with an EscalationError.
func (codec *Codec) Attenuate(parent *Token, audience string, restrictions []model.Restriction, validity time.Duration) (*Token, error) {
	if parent == nil || parent.Raw == "" {
		return nil, fmt.Errorf("%w: no parent token to attenuate", ErrCapabilityMalformed)
	}

	var capabilities []model.Capability
	if len(restrictions) == 0 {
		// no further restrictions, the child inherits the parents caveats
		capabilities = parent.Claims.Capabilities
	} else {
		for _, restriction := range restrictions {
			parentCapability, found := coveringCapability(parent.Claims.Capabilities, restriction.Resource, restriction.Action)
			if !found {
				return nil, &EscalationError{Detail: fmt.Sprintf("capability %s on %s is not covered by the parent token", restriction.Action, restriction.Resource)}
			}
			narrowed, err := intersectCaveats(parentCapability.Caveats, restriction.Caveats)
			if err != nil {
				return nil, err
			}
			capabilities = append(capabilities, model.Capability{Resource: restriction.Resource, Action: restriction.Action, Caveats: narrowed})
		}
	}
	if err := validateCapabilities(capabilities); err != nil {
		return nil, err
	}

	now := codec.clock.Now()
	expiry := now.Add(validity)
	if parent.Claims.ExpiresAt != nil && expiry.After(parent.Claims.ExpiresAt.Time) {
		// a child may never outlive its parent
		expiry = parent.Claims.ExpiresAt.Time
	}

	claims := model.CapabilityClaims{
		ConsentId:    parent.Claims.ConsentId,
		Capabilities: capabilities,
		Proof:        parent.Raw,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    parent.Claims.Subject,
			Subject:   audience,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}
	return codec.sign(claims, parent)
}

// Serialize returns the wire form of the token. It is safe for http
// headers and query parameters and contains the full attenuation chain.
func (codec *Codec) Serialize(token *Token) string {
	if token == nil {
		return ""
	}
	return token.Raw
}

// Deserialize reconstructs a token, including its full proof chain, from
// the wire form. It only checks structure, signatures are re-verified on
// every link by Verify.
func (codec *Codec) Deserialize(tokenString string) (*Token, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrCapabilityMalformed)
	}
	claims := &model.CapabilityClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(tokenString, claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapabilityMalformed, err)
	}

	token := &Token{Raw: tokenString, Claims: *claims}
	if claims.Proof != "" {
		parent, err := codec.Deserialize(claims.Proof)
		if err != nil {
			return nil, err
		}
		token.Parent = parent
	}
	return token, nil
}

func (codec *Codec) sign(claims model.CapabilityClaims, parent *Token) (*Token, error) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(codec.secret)
	if err != nil {
		logger.Warnf("Was not able to sign the token. Err: %v", err)
		return nil, err
	}
	return &Token{Raw: raw, Claims: claims, Parent: parent}, nil
}

func validateCapabilities(capabilities []model.Capability) error {
	if len(capabilities) == 0 {
		return fmt.Errorf("%w: a token requires at least one capability", ErrCapabilityMalformed)
	}
	for _, capability := range capabilities {
		if capability.Resource == "" || capability.Action == "" {
			return fmt.Errorf("%w: resource and action are required", ErrCapabilityMalformed)
		}
		if capability.Caveats.MaxAmount != nil && *capability.Caveats.MaxAmount < 0 {
			return fmt.Errorf("%w: maxAmount must not be negative", ErrCapabilityMalformed)
		}
		if capability.Caveats.MaxAmount != nil && capability.Caveats.Currency == "" {
			return fmt.Errorf("%w: an amount caveat requires a currency", ErrCapabilityMalformed)
		}
	}
	return nil
}

func coveringCapability(capabilities []model.Capability, resource string, action string) (model.Capability, bool) {
	for _, capability := range capabilities {
		if resourceCovers(capability.Resource, resource) && (capability.Action == "*" || capability.Action == action) {
			return capability, true
		}
	}
	return model.Capability{}, false
}

func resourceCovers(parent string, child string) bool {
	if parent == "*" || parent == child {
		return true
	}
	if strings.HasSuffix(parent, ":*") {
		return strings.HasPrefix(child, strings.TrimSuffix(parent, "*"))
	}
	return false
}

// intersectCaveats narrows the parent caveats with the restriction. The
// check is structural: a restriction may only tighten, any widening is
// an escalation.
func intersectCaveats(parent model.Caveats, restriction model.Caveats) (model.Caveats, error) {
	effective := parent

	if restriction.MaxAmount != nil {
		if parent.MaxAmount != nil && *restriction.MaxAmount > *parent.MaxAmount {
			return model.Caveats{}, &EscalationError{Detail: fmt.Sprintf("maxAmount %v exceeds the parents %v", *restriction.MaxAmount, *parent.MaxAmount)}
		}
		effective.MaxAmount = restriction.MaxAmount
	}

	if restriction.Currency != "" {
		if parent.Currency != "" && !strings.EqualFold(parent.Currency, restriction.Currency) {
			return model.Caveats{}, &EscalationError{Detail: fmt.Sprintf("currency %s differs from the parents %s", restriction.Currency, parent.Currency)}
		}
		effective.Currency = restriction.Currency
	}

	if restriction.AllowedMerchants != nil {
		if parent.AllowedMerchants != nil {
			for _, merchant := range restriction.AllowedMerchants {
				if !containsFold(parent.AllowedMerchants, merchant) {
					return model.Caveats{}, &EscalationError{Detail: fmt.Sprintf("merchant %s is not allowed by the parent token", merchant)}
				}
			}
		}
		effective.AllowedMerchants = restriction.AllowedMerchants
	}

	if restriction.AllowedCategories != nil {
		if parent.AllowedCategories != nil {
			for _, category := range restriction.AllowedCategories {
				if !containsFold(parent.AllowedCategories, category) {
					return model.Caveats{}, &EscalationError{Detail: fmt.Sprintf("category %s is not allowed by the parent token", category)}
				}
			}
		}
		effective.AllowedCategories = restriction.AllowedCategories
	}

	if restriction.NotAfter != nil {
		if parent.NotAfter != nil && restriction.NotAfter.After(parent.NotAfter.Time) {
			return model.Caveats{}, &EscalationError{Detail: "notAfter extends beyond the parents validity"}
		}
		effective.NotAfter = restriction.NotAfter
	}

	return effective, nil
}

func containsFold(values []string, value string) bool {
	for _, v := range values {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}
