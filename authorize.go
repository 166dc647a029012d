package main

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentauth/consent-pdp/capability"
	"github.com/agentauth/consent-pdp/model"
)

/**
* Runs the full decision pipeline for a transaction an agent wants to
* execute. The answer is always 200 with an explicit decision, only
* malformed requests and internal failures map to error codes.
 */
func authorize(c *gin.Context) {

	bodyData, err := ioutil.ReadAll(c.Request.Body)
	if err != nil {
		logger.Debugf("Was not able to read the body, return error %v.", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to read body", Detail: err.Error()})
		return
	}

	var authorizeRequest model.AuthorizeRequest
	err = json.Unmarshal(bodyData, &authorizeRequest)
	if err != nil {
		logger.Debugf("Was not able to unmarshal request body: %s", string(bodyData))
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to unmarshal body.", Detail: err.Error()})
		return
	}

	response, httpErr := decider.Decide(c.Request.Context(), authorizeRequest)
	if httpErr != (model.HttpError{}) {
		logger.Debugf("Was not able to get a decision. Msg: %v", httpErr)
		c.AbortWithStatusJSON(httpErr.Status, model.ProblemDetails{Type: "DecisionError", Status: httpErr.Status, Title: "Unable to get a decision.", Detail: httpErr.Message})
		return
	}
	c.AbortWithStatusJSON(http.StatusOK, response)
}

/**
* Settles an authorization code on behalf of a merchant. The merchant is
* identified by the X-Merchant-Id header.
 */
func verifyAuthorization(c *gin.Context) {

	bodyData, err := ioutil.ReadAll(c.Request.Body)
	if err != nil {
		logger.Debugf("Was not able to read the body, return error %v.", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to read body", Detail: err.Error()})
		return
	}

	var verifyRequest model.VerifyRequest
	err = json.Unmarshal(bodyData, &verifyRequest)
	if err != nil {
		logger.Debugf("Was not able to unmarshal request body: %s", string(bodyData))
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to unmarshal body.", Detail: err.Error()})
		return
	}
	if verifyRequest.AuthorizationCode == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "An authorization code is required."})
		return
	}

	verifiedBy := c.GetHeader("X-Merchant-Id")
	if verifiedBy == "" {
		verifiedBy = verifyRequest.MerchantId
	}

	response := decider.VerifyCode(verifyRequest, verifiedBy)
	c.AbortWithStatusJSON(http.StatusOK, response)
}

type attenuateRequest struct {
	Token           string              `json:"token"`
	Audience        string              `json:"audience"`
	Restrictions    []model.Restriction `json:"restrictions,omitempty"`
	ValiditySeconds int                 `json:"validitySeconds,omitempty"`
}

type attenuateResponse struct {
	Token string `json:"token"`
}

/**
* Derives a narrower delegation token from an existing one. Attenuation
* does not require the server, this endpoint only exists for holders
* that do not implement the token format themselves.
 */
func attenuateToken(c *gin.Context) {

	bodyData, err := ioutil.ReadAll(c.Request.Body)
	if err != nil {
		logger.Debugf("Was not able to read the body, return error %v.", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to read body", Detail: err.Error()})
		return
	}

	var request attenuateRequest
	err = json.Unmarshal(bodyData, &request)
	if err != nil {
		logger.Debugf("Was not able to unmarshal request body: %s", string(bodyData))
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to unmarshal body.", Detail: err.Error()})
		return
	}
	if request.Token == "" || request.Audience == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "A parent token and an audience are required."})
		return
	}

	parent, err := tokenCodec.Deserialize(request.Token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "The parent token is malformed.", Detail: err.Error()})
		return
	}

	validity := time.Duration(request.ValiditySeconds) * time.Second
	if validity <= 0 && parent.Claims.ExpiresAt != nil {
		// without an explicit validity the child runs until the parent expires
		validity = time.Until(parent.Claims.ExpiresAt.Time)
	}
	child, err := tokenCodec.Attenuate(parent, request.Audience, request.Restrictions, validity)
	if err != nil {
		var escalation *capability.EscalationError
		if errors.As(err, &escalation) {
			c.AbortWithStatusJSON(http.StatusForbidden, model.ProblemDetails{Type: "EscalationError", Status: http.StatusForbidden, Title: "The restriction widens the parent token.", Detail: escalation.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to attenuate the token.", Detail: err.Error()})
		return
	}

	c.AbortWithStatusJSON(http.StatusOK, attenuateResponse{Token: tokenCodec.Serialize(child)})
}
