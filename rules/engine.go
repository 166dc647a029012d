package rules

import (
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/agentauth/consent-pdp/model"
)

// Request is one transaction to evaluate against the principals policy.
type Request struct {
	UserId   string
	Amount   float64
	Merchant string
	Category string
	Now      time.Time
}

// Engine evaluates a request in a fixed order:
// 1. per-transaction limit
// 2. merchant rules, first matching pattern wins
// 3. category rules, exact case-insensitive match
// 4. daily aggregate
// 5. monthly aggregate
// 6. human approval threshold
// Every stage may short-circuit to a deny with its specific reason.
type Engine struct {
	repo    Repository
	tracker *UsageTracker
}

func NewEngine(repo Repository, tracker *UsageTracker) *Engine {
	engine := new(Engine)
	engine.repo = repo
	engine.tracker = tracker
	return engine
}

func (engine *Engine) Evaluate(request Request) (decision model.Decision, httpErr model.HttpError) {
	rulesEvaluated := 0

	limits, httpErr := engine.repo.GetSpendingLimit(request.UserId)
	if httpErr.Status == http.StatusNotFound {
		limits = DefaultSpendingLimit(request.UserId)
		httpErr = model.HttpError{}
		if putErr := engine.repo.PutSpendingLimit(limits); putErr != (model.HttpError{}) {
			logger.Warnf("Was not able to provision default limits for %s. Err: %v", request.UserId, putErr)
		}
	} else if httpErr != (model.HttpError{}) {
		return decision, httpErr
	}

	// 1. per-transaction limit
	rulesEvaluated++
	if request.Amount > limits.PerTransactionLimit {
		return deny(model.ReasonPerTransactionLimit, fmt.Sprintf("Amount %v exceeds the per-transaction limit of %v.", request.Amount, limits.PerTransactionLimit), rulesEvaluated), httpErr
	}

	// 2. merchant rules
	if request.Merchant != "" {
		rulesEvaluated++
		merchantRules, merchantErr := engine.repo.GetMerchantRules(request.UserId)
		if merchantErr != (model.HttpError{}) {
			return decision, merchantErr
		}
		if blocked := merchantBlocked(merchantRules, request.Merchant); blocked {
			return deny(model.ReasonMerchantNotAllowed, fmt.Sprintf("Merchant %s is blocked by a merchant rule.", request.Merchant), rulesEvaluated), httpErr
		}
	}

	// 3. category rules
	if request.Category != "" {
		rulesEvaluated++
		categoryRules, categoryErr := engine.repo.GetCategoryRules(request.UserId)
		if categoryErr != (model.HttpError{}) {
			return decision, categoryErr
		}
		if blocked := categoryBlocked(categoryRules, request.Category); blocked {
			return deny(model.ReasonCategoryNotAllowed, fmt.Sprintf("Category %s is blocked by a category rule.", request.Category), rulesEvaluated), httpErr
		}
	}

	// 4. + 5. aggregates, checked and committed under the principals lock
	reason := engine.tracker.Reserve(request.UserId, request.Amount, limits, request.Now)
	rulesEvaluated++
	if reason == model.ReasonDailyLimitExceeded {
		return deny(reason, fmt.Sprintf("The transaction would exceed the daily limit of %v.", limits.DailyLimit), rulesEvaluated), httpErr
	}
	rulesEvaluated++
	if reason == model.ReasonMonthlyLimitExceeded {
		return deny(reason, fmt.Sprintf("The transaction would exceed the monthly limit of %v.", limits.MonthlyLimit), rulesEvaluated), httpErr
	}

	// 6. approval threshold, still an allow
	requiresApproval := false
	if limits.RequireApprovalAbove != nil {
		rulesEvaluated++
		requiresApproval = request.Amount > *limits.RequireApprovalAbove
	}

	return model.Decision{
		Allowed:               true,
		Message:               "All rules passed.",
		RequiresHumanApproval: requiresApproval,
		RulesEvaluated:        rulesEvaluated,
	}, httpErr
}

/**
* The first matching pattern decides. Without any match, the merchant is allowed by default.
 */
func merchantBlocked(merchantRules []model.MerchantRule, merchant string) bool {
	for _, rule := range merchantRules {
		matched, err := path.Match(strings.ToLower(rule.MerchantPattern), strings.ToLower(merchant))
		if err != nil {
			logger.Warnf("Merchant rule %s carries an invalid pattern %s. Err: %v", rule.Id, rule.MerchantPattern, err)
			continue
		}
		if matched {
			return rule.Action == model.RuleActionBlock
		}
	}
	return false
}

func categoryBlocked(categoryRules []model.CategoryRule, category string) bool {
	for _, rule := range categoryRules {
		if strings.EqualFold(rule.Category, category) {
			return rule.Action == model.RuleActionBlock
		}
	}
	return false
}

func deny(reason string, message string, rulesEvaluated int) model.Decision {
	return model.Decision{Allowed: false, Reason: reason, Message: message, RulesEvaluated: rulesEvaluated}
}
