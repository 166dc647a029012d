package model

import "time"

type RuleAction string

const (
	RuleActionAllow RuleAction = "allow"
	RuleActionBlock RuleAction = "block"
)

// SpendingLimit is the per-principal limits configuration the rules
// engine evaluates against.
type SpendingLimit struct {
	UserId               string     `json:"userId"`
	DailyLimit           float64    `json:"dailyLimit"`
	MonthlyLimit         float64    `json:"monthlyLimit"`
	PerTransactionLimit  float64    `json:"perTransactionLimit"`
	RequireApprovalAbove *float64   `json:"requireApprovalAbove,omitempty"`
	Active               bool       `json:"active"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// MerchantRule allows or blocks merchants by pattern. Patterns support
// the * and ? wildcards, for example *.gambling.com.
type MerchantRule struct {
	Id              string     `json:"id"`
	UserId          string     `json:"userId"`
	MerchantPattern string     `json:"merchantPattern"`
	Action          RuleAction `json:"action"`
	Description     string     `json:"description,omitempty"`
	Active          bool       `json:"active"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// CategoryRule allows or blocks a spending category by exact,
// case-insensitive match.
type CategoryRule struct {
	Id        string     `json:"id"`
	UserId    string     `json:"userId"`
	Category  string     `json:"category"`
	Action    RuleAction `json:"action"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"createdAt"`
}

// UsageRecord tracks spend against the limits, with lazy counter resets.
type UsageRecord struct {
	UserId                  string    `json:"userId"`
	DailySpent              float64   `json:"dailySpent"`
	MonthlySpent            float64   `json:"monthlySpent"`
	DailyTransactionCount   int       `json:"dailyTransactionCount"`
	MonthlyTransactionCount int       `json:"monthlyTransactionCount"`
	LastDailyReset          time.Time `json:"lastDailyReset"`
	LastMonthlyReset        time.Time `json:"lastMonthlyReset"`
}
