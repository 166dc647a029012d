package main

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agentauth/consent-pdp/model"
	"github.com/agentauth/consent-pdp/rules"
)

func getSpendingLimit(c *gin.Context) {
	userId := c.Param("userId")
	limit, httpErr := ruleRepo.GetSpendingLimit(userId)
	if httpErr.Status == http.StatusNotFound {
		// the engine provisions defaults on first use, answer them here as well
		c.AbortWithStatusJSON(http.StatusOK, rules.DefaultSpendingLimit(userId))
		return
	}
	if httpErr != (model.HttpError{}) {
		c.AbortWithStatusJSON(httpErr.Status, model.ProblemDetails{Type: "RepositoryError", Status: httpErr.Status, Title: "Unable to get the spending limit.", Detail: httpErr.Message})
		return
	}
	c.AbortWithStatusJSON(http.StatusOK, limit)
}

func putSpendingLimit(c *gin.Context) {

	bodyData, err := ioutil.ReadAll(c.Request.Body)
	if err != nil {
		logger.Debugf("Was not able to read the body, return error %v.", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to read body", Detail: err.Error()})
		return
	}

	var limit model.SpendingLimit
	err = json.Unmarshal(bodyData, &limit)
	if err != nil {
		logger.Debugf("Was not able to unmarshal request body: %s", string(bodyData))
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to unmarshal body.", Detail: err.Error()})
		return
	}

	userId := c.Param("userId")
	if limit.UserId != "" && limit.UserId != userId {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "User id cannot be updated."})
		return
	}
	limit.UserId = userId
	limit.Active = true
	limit.UpdatedAt = time.Now()
	if limit.CreatedAt.IsZero() {
		limit.CreatedAt = limit.UpdatedAt
	}

	httpErr := ruleRepo.PutSpendingLimit(limit)
	if httpErr != (model.HttpError{}) {
		c.AbortWithStatusJSON(httpErr.Status, model.ProblemDetails{Type: "RepositoryError", Status: httpErr.Status, Title: "Failed to store the spending limit.", Detail: httpErr.Message})
		return
	}
	c.AbortWithStatus(http.StatusNoContent)
}

func getUsage(c *gin.Context) {
	userId := c.Param("userId")
	c.AbortWithStatusJSON(http.StatusOK, usageTracker.Usage(userId, time.Now()))
}

func createMerchantRule(c *gin.Context) {

	bodyData, err := ioutil.ReadAll(c.Request.Body)
	if err != nil {
		logger.Debugf("Was not able to read the body, return error %v.", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to read body", Detail: err.Error()})
		return
	}

	var rule model.MerchantRule
	err = json.Unmarshal(bodyData, &rule)
	if err != nil {
		logger.Debugf("Was not able to unmarshal request body: %s", string(bodyData))
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to unmarshal body.", Detail: err.Error()})
		return
	}
	if rule.Action != model.RuleActionAllow && rule.Action != model.RuleActionBlock {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "A rule action has to be allow or block."})
		return
	}

	rule.Id = uuid.NewString()
	rule.UserId = c.Param("userId")
	rule.Active = true
	rule.CreatedAt = time.Now()

	httpErr := ruleRepo.CreateMerchantRule(rule)
	if httpErr != (model.HttpError{}) {
		c.AbortWithStatusJSON(httpErr.Status, model.ProblemDetails{Type: "RepositoryError", Status: httpErr.Status, Title: "Failed to create the merchant rule.", Detail: httpErr.Message})
		return
	}
	c.AbortWithStatusJSON(http.StatusCreated, rule)
}

func getMerchantRules(c *gin.Context) {
	userId := c.Param("userId")
	merchantRules, httpErr := ruleRepo.GetMerchantRules(userId)
	if httpErr != (model.HttpError{}) {
		c.AbortWithStatusJSON(httpErr.Status, model.ProblemDetails{Type: "RepositoryError", Status: httpErr.Status, Title: "Unable to get merchant rules.", Detail: httpErr.Message})
		return
	}
	if merchantRules == nil {
		merchantRules = []model.MerchantRule{}
	}
	c.AbortWithStatusJSON(http.StatusOK, merchantRules)
}

func createCategoryRule(c *gin.Context) {

	bodyData, err := ioutil.ReadAll(c.Request.Body)
	if err != nil {
		logger.Debugf("Was not able to read the body, return error %v.", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to read body", Detail: err.Error()})
		return
	}

	var rule model.CategoryRule
	err = json.Unmarshal(bodyData, &rule)
	if err != nil {
		logger.Debugf("Was not able to unmarshal request body: %s", string(bodyData))
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to unmarshal body.", Detail: err.Error()})
		return
	}
	if rule.Action != model.RuleActionAllow && rule.Action != model.RuleActionBlock {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "A rule action has to be allow or block."})
		return
	}

	rule.Id = uuid.NewString()
	rule.UserId = c.Param("userId")
	rule.Active = true
	rule.CreatedAt = time.Now()

	httpErr := ruleRepo.CreateCategoryRule(rule)
	if httpErr != (model.HttpError{}) {
		c.AbortWithStatusJSON(httpErr.Status, model.ProblemDetails{Type: "RepositoryError", Status: httpErr.Status, Title: "Failed to create the category rule.", Detail: httpErr.Message})
		return
	}
	c.AbortWithStatusJSON(http.StatusCreated, rule)
}

func getCategoryRules(c *gin.Context) {
	userId := c.Param("userId")
	categoryRules, httpErr := ruleRepo.GetCategoryRules(userId)
	if httpErr != (model.HttpError{}) {
		c.AbortWithStatusJSON(httpErr.Status, model.ProblemDetails{Type: "RepositoryError", Status: httpErr.Status, Title: "Unable to get category rules.", Detail: httpErr.Message})
		return
	}
	if categoryRules == nil {
		categoryRules = []model.CategoryRule{}
	}
	c.AbortWithStatusJSON(http.StatusOK, categoryRules)
}
