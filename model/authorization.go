package model

import "time"

// Authorization records a single decision. Approved records carry a
// short-lived, single-use code that merchants verify.
type Authorization struct {
	Id                string     `json:"id"`
	AuthorizationCode string     `json:"authorizationCode,omitempty"`
	ConsentId         string     `json:"consentId"`
	Decision          string     `json:"decision"`
	DenialReason      string     `json:"denialReason,omitempty"`
	Amount            float64    `json:"amount"`
	Currency          string     `json:"currency"`
	MerchantId        string     `json:"merchantId,omitempty"`
	MerchantCategory  string     `json:"merchantCategory,omitempty"`
	Action            string     `json:"action"`
	CreatedAt         time.Time  `json:"createdAt"`
	ExpiresAt         time.Time  `json:"expiresAt"`
	UsedAt            *time.Time `json:"usedAt,omitempty"`
	IsUsed            bool       `json:"isUsed"`
	VerifiedAt        *time.Time `json:"verifiedAt,omitempty"`
	VerifiedBy        string     `json:"verifiedBy,omitempty"`
}

// AuthorizeRequest is the body of the decision api. The token is the
// leaf of the delegation chain the agent was handed.
type AuthorizeRequest struct {
	Token       string             `json:"token"`
	Transaction TransactionContext `json:"transaction"`
}

// VerifyRequest is the body of the merchant verification api.
type VerifyRequest struct {
	AuthorizationCode string  `json:"authorizationCode"`
	Amount            float64 `json:"amount"`
	Currency          string  `json:"currency"`
	MerchantId        string  `json:"merchantId"`
}

// AuthorizeResponse is answered on the decision api.
type AuthorizeResponse struct {
	Decision          string     `json:"decision"`
	Reason            string     `json:"reason,omitempty"`
	Message           string     `json:"message,omitempty"`
	AuthorizationCode string     `json:"authorizationCode,omitempty"`
	ConsentId         string     `json:"consentId,omitempty"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
}

// VerifyResponse is answered on the merchant verification api.
type VerifyResponse struct {
	Valid        bool          `json:"valid"`
	Reason       string        `json:"reason,omitempty"`
	ConsentProof *ConsentProof `json:"consentProof,omitempty"`
}

// ConsentProof is the minimal evidence handed to a merchant that a
// transaction was covered by a consent.
type ConsentProof struct {
	ConsentId    string    `json:"consentId"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	AuthorizedAt time.Time `json:"authorizedAt"`
}
