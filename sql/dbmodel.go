package sql

import "time"

// Row types for the go-rel repositories. List-valued consent fields are
// stored json-encoded, the read side decodes them back into the api model.

type Consent struct {
	ID                   string
	UserId               string
	IntentDescription    string
	IntentHash           string
	MaxAmount            float64
	Currency             string
	AllowedMerchants     string
	AllowedCategories    string
	SingleUse            bool
	RequiresConfirmation bool
	CreatedAt            time.Time
	ExpiresAt            time.Time
	RevokedAt            *time.Time
	Active               bool
}

type Authorization struct {
	ID                string
	AuthorizationCode string
	ConsentId         string
	Decision          string
	DenialReason      string
	Amount            float64
	Currency          string
	MerchantId        string
	MerchantCategory  string
	Action            string
	CreatedAt         time.Time
	ExpiresAt         time.Time
	UsedAt            *time.Time
	IsUsed            bool
	VerifiedAt        *time.Time
	VerifiedBy        string
}

type SpendingLimit struct {
	ID                   int
	UserId               string
	DailyLimit           float64
	MonthlyLimit         float64
	PerTransactionLimit  float64
	RequireApprovalAbove *float64
	Active               bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type MerchantRule struct {
	ID              int
	RuleId          string
	UserId          string
	MerchantPattern string
	Action          string
	Description     string
	Active          bool
	CreatedAt       time.Time
}

type CategoryRule struct {
	ID        int
	RuleId    string
	UserId    string
	Category  string
	Action    string
	Active    bool
	CreatedAt time.Time
}
