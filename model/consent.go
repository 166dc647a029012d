package model

import "time"

// Consent is the root of trust. It is created once, mutated only by
// revocation and never physically deleted.
type Consent struct {
	ConsentId         string             `json:"consentId"`
	UserId            string             `json:"userId"`
	IntentDescription string             `json:"intentDescription"`
	IntentHash        string             `json:"intentHash"`
	Constraints       ConsentConstraints `json:"constraints"`
	Scope             ConsentScope       `json:"scope"`
	CreatedAt         time.Time          `json:"createdAt"`
	ExpiresAt         time.Time          `json:"expiresAt"`
	RevokedAt         *time.Time         `json:"revokedAt,omitempty"`
	Active            bool               `json:"active"`
}

type ConsentConstraints struct {
	MaxAmount         float64  `json:"maxAmount"`
	Currency          string   `json:"currency"`
	AllowedMerchants  []string `json:"allowedMerchants,omitempty"`
	AllowedCategories []string `json:"allowedCategories,omitempty"`
}

type ConsentScope struct {
	SingleUse            bool `json:"singleUse"`
	RequiresConfirmation bool `json:"requiresConfirmation"`
}

/**
* A consent is valid exactly when it is active, not revoked and not expired.
 */
func (c Consent) IsValid(now time.Time) bool {
	return c.Active && c.RevokedAt == nil && now.Before(c.ExpiresAt)
}

type CreateConsentRequest struct {
	UserId            string             `json:"userId"`
	AgentId           string             `json:"agentId"`
	IntentDescription string             `json:"intentDescription"`
	Constraints       ConsentConstraints `json:"constraints"`
	Scope             ConsentScope       `json:"scope"`
	ValiditySeconds   int                `json:"validitySeconds,omitempty"`
}

type CreateConsentResponse struct {
	Consent Consent `json:"consent"`
	// the root delegation token minted for the agent
	Token string `json:"token"`
}
