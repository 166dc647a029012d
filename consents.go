package main

import (
	"encoding/json"
	"io/ioutil"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentauth/consent-pdp/logging"
	"github.com/agentauth/consent-pdp/model"
)

func createConsent(c *gin.Context) {

	bodyData, err := ioutil.ReadAll(c.Request.Body)
	if err != nil {
		logger.Debugf("Was not able to read the body, return error %v.", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to read body", Detail: err.Error()})
		return
	}

	var consentRequest model.CreateConsentRequest
	err = json.Unmarshal(bodyData, &consentRequest)
	if err != nil {
		logger.Debugf("Was not able to unmarshal request body: %s", string(bodyData))
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to unmarshal body.", Detail: err.Error()})
		return
	}

	response, httpErr := consentService.CreateConsent(c.Request.Context(), consentRequest)
	if httpErr != (model.HttpError{}) {
		logger.Debugf("Was not able to create consent %s.", logging.PrettyPrintObject(consentRequest))
		c.AbortWithStatusJSON(httpErr.Status, model.ProblemDetails{Type: "ConsentError", Status: httpErr.Status, Title: "Failed to create consent.", Detail: httpErr.Message})
		return
	}
	c.AbortWithStatusJSON(http.StatusCreated, response)
}

func getConsentById(c *gin.Context) {
	consentId := c.Param("id")
	storedConsent, httpErr := consentService.GetConsent(c.Request.Context(), consentId)
	if httpErr != (model.HttpError{}) {
		c.AbortWithStatusJSON(httpErr.Status, model.ProblemDetails{Type: "NotFound", Status: httpErr.Status, Title: "Consent not found.", Detail: httpErr.Message})
		return
	}
	c.AbortWithStatusJSON(http.StatusOK, storedConsent)
}

func revokeConsentById(c *gin.Context) {
	consentId := c.Param("id")
	httpErr := consentService.RevokeConsent(c.Request.Context(), consentId)
	if httpErr != (model.HttpError{}) {
		c.AbortWithStatusJSON(httpErr.Status, model.ProblemDetails{Type: "ConsentError", Status: httpErr.Status, Title: "Failed to revoke consent.", Detail: httpErr.Message})
		return
	}
	c.AbortWithStatus(http.StatusNoContent)
}
