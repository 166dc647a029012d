package rules

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-rel/rel"
	"github.com/go-rel/rel/where"

	"github.com/agentauth/consent-pdp/model"
	dbModel "github.com/agentauth/consent-pdp/sql"
)

// SqlRepo persists limits and policy rules through go-rel.
type SqlRepo struct {
	repo *rel.Repository
}

func NewSqlRepository(repository rel.Repository) *SqlRepo {
	sqlRepo := new(SqlRepo)
	sqlRepo.repo = &repository
	return sqlRepo
}

func (sqlRepo SqlRepo) GetSpendingLimit(userId string) (limit model.SpendingLimit, httpErr model.HttpError) {
	var sqlLimit dbModel.SpendingLimit
	err := (*sqlRepo.repo).Find(context.TODO(), &sqlLimit, where.Eq("user_id", userId))
	if errors.Is(err, rel.ErrNotFound) {
		return limit, model.HttpError{Status: http.StatusNotFound, Message: fmt.Sprintf("No spending limit configured for %s.", userId), RootError: nil}
	}
	if err != nil {
		return limit, model.HttpError{Status: http.StatusInternalServerError, Message: "Was not able to query the spending limit.", RootError: err}
	}
	return fromSqlLimit(sqlLimit), httpErr
}

func (sqlRepo SqlRepo) PutSpendingLimit(limit model.SpendingLimit) (httpErr model.HttpError) {
	if limit.UserId == "" {
		return model.HttpError{Status: http.StatusBadRequest, Message: "A spending limit requires a user id.", RootError: nil}
	}

	ctx := context.TODO()
	sqlLimit := toSqlLimit(limit)

	var existing dbModel.SpendingLimit
	err := (*sqlRepo.repo).Find(ctx, &existing, where.Eq("user_id", limit.UserId))
	if err == nil {
		sqlLimit.ID = existing.ID
		err = (*sqlRepo.repo).Update(ctx, &sqlLimit)
	} else {
		err = (*sqlRepo.repo).Insert(ctx, &sqlLimit)
	}
	if err != nil {
		return model.HttpError{Status: http.StatusInternalServerError, Message: "Was not able to store the spending limit.", RootError: err}
	}
	return httpErr
}

func (sqlRepo SqlRepo) GetMerchantRules(userId string) (merchantRules []model.MerchantRule, httpErr model.HttpError) {
	var sqlRules []dbModel.MerchantRule
	err := (*sqlRepo.repo).FindAll(context.TODO(), &sqlRules, where.Eq("user_id", userId).AndEq("active", true))
	if err != nil {
		return merchantRules, model.HttpError{Status: http.StatusInternalServerError, Message: "Was not able to query for merchant rules.", RootError: err}
	}
	for _, sqlRule := range sqlRules {
		merchantRules = append(merchantRules, fromSqlMerchantRule(sqlRule))
	}
	sort.Slice(merchantRules, func(i, j int) bool {
		return merchantRules[i].CreatedAt.After(merchantRules[j].CreatedAt)
	})
	return merchantRules, httpErr
}

func (sqlRepo SqlRepo) CreateMerchantRule(rule model.MerchantRule) (httpErr model.HttpError) {
	if rule.UserId == "" || rule.MerchantPattern == "" {
		return model.HttpError{Status: http.StatusBadRequest, Message: "A merchant rule requires a user id and a pattern.", RootError: nil}
	}
	sqlRule := toSqlMerchantRule(rule)
	err := (*sqlRepo.repo).Insert(context.TODO(), &sqlRule)
	if err != nil {
		return model.HttpError{Status: http.StatusInternalServerError, Message: "Was not able to store the merchant rule.", RootError: err}
	}
	return httpErr
}

func (sqlRepo SqlRepo) GetCategoryRules(userId string) (categoryRules []model.CategoryRule, httpErr model.HttpError) {
	var sqlRules []dbModel.CategoryRule
	err := (*sqlRepo.repo).FindAll(context.TODO(), &sqlRules, where.Eq("user_id", userId).AndEq("active", true))
	if err != nil {
		return categoryRules, model.HttpError{Status: http.StatusInternalServerError, Message: "Was not able to query for category rules.", RootError: err}
	}
	for _, sqlRule := range sqlRules {
		categoryRules = append(categoryRules, fromSqlCategoryRule(sqlRule))
	}
	return categoryRules, httpErr
}

func (sqlRepo SqlRepo) CreateCategoryRule(rule model.CategoryRule) (httpErr model.HttpError) {
	if rule.UserId == "" || rule.Category == "" {
		return model.HttpError{Status: http.StatusBadRequest, Message: "A category rule requires a user id and a category.", RootError: nil}
	}
	sqlRule := toSqlCategoryRule(rule)
	err := (*sqlRepo.repo).Insert(context.TODO(), &sqlRule)
	if err != nil {
		return model.HttpError{Status: http.StatusInternalServerError, Message: "Was not able to store the category rule.", RootError: err}
	}
	return httpErr
}

func toSqlLimit(limit model.SpendingLimit) dbModel.SpendingLimit {
	return dbModel.SpendingLimit{
		UserId:               limit.UserId,
		DailyLimit:           limit.DailyLimit,
		MonthlyLimit:         limit.MonthlyLimit,
		PerTransactionLimit:  limit.PerTransactionLimit,
		RequireApprovalAbove: limit.RequireApprovalAbove,
		Active:               limit.Active,
		CreatedAt:            limit.CreatedAt,
		UpdatedAt:            limit.UpdatedAt,
	}
}

func fromSqlLimit(sqlLimit dbModel.SpendingLimit) model.SpendingLimit {
	return model.SpendingLimit{
		UserId:               sqlLimit.UserId,
		DailyLimit:           sqlLimit.DailyLimit,
		MonthlyLimit:         sqlLimit.MonthlyLimit,
		PerTransactionLimit:  sqlLimit.PerTransactionLimit,
		RequireApprovalAbove: sqlLimit.RequireApprovalAbove,
		Active:               sqlLimit.Active,
		CreatedAt:            sqlLimit.CreatedAt,
		UpdatedAt:            sqlLimit.UpdatedAt,
	}
}

func toSqlMerchantRule(rule model.MerchantRule) dbModel.MerchantRule {
	return dbModel.MerchantRule{
		RuleId:          rule.Id,
		UserId:          rule.UserId,
		MerchantPattern: rule.MerchantPattern,
		Action:          string(rule.Action),
		Description:     rule.Description,
		Active:          rule.Active,
		CreatedAt:       rule.CreatedAt,
	}
}

func fromSqlMerchantRule(sqlRule dbModel.MerchantRule) model.MerchantRule {
	return model.MerchantRule{
		Id:              sqlRule.RuleId,
		UserId:          sqlRule.UserId,
		MerchantPattern: sqlRule.MerchantPattern,
		Action:          model.RuleAction(sqlRule.Action),
		Description:     sqlRule.Description,
		Active:          sqlRule.Active,
		CreatedAt:       sqlRule.CreatedAt,
	}
}

func toSqlCategoryRule(rule model.CategoryRule) dbModel.CategoryRule {
	return dbModel.CategoryRule{
		RuleId:    rule.Id,
		UserId:    rule.UserId,
		Category:  rule.Category,
		Action:    string(rule.Action),
		Active:    rule.Active,
		CreatedAt: rule.CreatedAt,
	}
}

func fromSqlCategoryRule(sqlRule dbModel.CategoryRule) model.CategoryRule {
	return model.CategoryRule{
		Id:        sqlRule.RuleId,
		UserId:    sqlRule.UserId,
		Category:  sqlRule.Category,
		Action:    model.RuleAction(sqlRule.Action),
		Active:    sqlRule.Active,
		CreatedAt: sqlRule.CreatedAt,
	}
}
