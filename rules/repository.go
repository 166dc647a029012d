package rules

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/agentauth/consent-pdp/logging"
	"github.com/agentauth/consent-pdp/model"
)

var logger = logging.Log()

// Repository provides the per-principal limits and policy rules the
// engine evaluates. Merchant rules are returned active-only, most
// recently created first, since the first matching pattern wins.
type Repository interface {
	GetSpendingLimit(userId string) (limit model.SpendingLimit, httpErr model.HttpError)
	PutSpendingLimit(limit model.SpendingLimit) model.HttpError
	GetMerchantRules(userId string) (rules []model.MerchantRule, httpErr model.HttpError)
	CreateMerchantRule(rule model.MerchantRule) model.HttpError
	GetCategoryRules(userId string) (rules []model.CategoryRule, httpErr model.HttpError)
	CreateCategoryRule(rule model.CategoryRule) model.HttpError
}

/**
* Quick in-memory implementation of the rules repository. Should only be used for dev and testing, does not have any persistence.
 */
type InMemoryRepo struct {
	mutex         sync.RWMutex
	limits        map[string]model.SpendingLimit
	merchantRules map[string][]model.MerchantRule
	categoryRules map[string][]model.CategoryRule
}

func NewInMemoryRepo() *InMemoryRepo {
	repo := new(InMemoryRepo)
	repo.limits = map[string]model.SpendingLimit{}
	repo.merchantRules = map[string][]model.MerchantRule{}
	repo.categoryRules = map[string][]model.CategoryRule{}
	return repo
}

func (repo *InMemoryRepo) GetSpendingLimit(userId string) (limit model.SpendingLimit, httpErr model.HttpError) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	limit, ok := repo.limits[userId]
	if !ok {
		return limit, model.HttpError{Status: http.StatusNotFound, Message: "No spending limit configured.", RootError: nil}
	}
	return limit, httpErr
}

func (repo *InMemoryRepo) PutSpendingLimit(limit model.SpendingLimit) (httpErr model.HttpError) {
	if limit.UserId == "" {
		return model.HttpError{Status: http.StatusBadRequest, Message: "A spending limit requires a user id.", RootError: nil}
	}
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	limit.UpdatedAt = time.Now()
	repo.limits[limit.UserId] = limit
	return httpErr
}

func (repo *InMemoryRepo) GetMerchantRules(userId string) (rules []model.MerchantRule, httpErr model.HttpError) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	for _, rule := range repo.merchantRules[userId] {
		if rule.Active {
			rules = append(rules, rule)
		}
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].CreatedAt.After(rules[j].CreatedAt)
	})
	return rules, httpErr
}

func (repo *InMemoryRepo) CreateMerchantRule(rule model.MerchantRule) (httpErr model.HttpError) {
	if rule.UserId == "" || rule.MerchantPattern == "" {
		return model.HttpError{Status: http.StatusBadRequest, Message: "A merchant rule requires a user id and a pattern.", RootError: nil}
	}
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	repo.merchantRules[rule.UserId] = append(repo.merchantRules[rule.UserId], rule)
	return httpErr
}

func (repo *InMemoryRepo) GetCategoryRules(userId string) (rules []model.CategoryRule, httpErr model.HttpError) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	for _, rule := range repo.categoryRules[userId] {
		if rule.Active {
			rules = append(rules, rule)
		}
	}
	return rules, httpErr
}

func (repo *InMemoryRepo) CreateCategoryRule(rule model.CategoryRule) (httpErr model.HttpError) {
	if rule.UserId == "" || rule.Category == "" {
		return model.HttpError{Status: http.StatusBadRequest, Message: "A category rule requires a user id and a category.", RootError: nil}
	}
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	repo.categoryRules[rule.UserId] = append(repo.categoryRules[rule.UserId], rule)
	return httpErr
}
