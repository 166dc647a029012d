package model

import "github.com/golang-jwt/jwt/v4"

// capability token as presented by agents

// Caveats narrow what a capability permits. Every derived token may only
// carry caveats that are a subset of its parents effective caveats.
type Caveats struct {
	MaxAmount         *float64         `json:"maxAmount,omitempty"`
	Currency          string           `json:"currency,omitempty"`
	AllowedMerchants  []string         `json:"allowedMerchants,omitempty"`
	AllowedCategories []string         `json:"allowedCategories,omitempty"`
	NotAfter          *jwt.NumericDate `json:"notAfter,omitempty"`
}

type Capability struct {
	Resource string  `json:"with"`
	Action   string  `json:"can"`
	Caveats  Caveats `json:"caveats,omitempty"`
}

// CapabilityClaims is the JWT claim set of one link in the delegation
// chain. Proof carries the serialized parent token, so the full chain
// travels inside the leaf token and can be verified without any lookup.
type CapabilityClaims struct {
	ConsentId    string       `json:"consentId"`
	Capabilities []Capability `json:"att"`
	Proof        string       `json:"prf,omitempty"`
	jwt.RegisteredClaims
}

// Restriction is one additional caveat applied during attenuation.
type Restriction struct {
	Resource string  `json:"with"`
	Action   string  `json:"can"`
	Caveats  Caveats `json:"caveats,omitempty"`
}
