package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/agentauth/consent-pdp/logging"
)

var logger = logging.Log()

const (
	EventAuthorizationApproved = "authorization.approved"
	EventAuthorizationDenied   = "authorization.denied"
	EventAuthorizationStepUp   = "authorization.step_up"
	EventLimitExceeded         = "limit.exceeded"
	EventRuleTriggered         = "rule.triggered"
)

const signatureHeader = "X-AgentAuth-Signature"

// Event is the envelope delivered to the configured webhook endpoint.
type Event struct {
	EventType  string      `json:"eventType"`
	OccurredAt time.Time   `json:"occurredAt"`
	Payload    interface{} `json:"payload"`
}

// Emitter publishes decision events. Emission is best-effort and never
// blocks or fails a decision.
type Emitter interface {
	Emit(eventType string, payload interface{})
}

// Interface to the http-client, allows the delivery to be mocked.
type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
	PostForm(url string, data url.Values) (*http.Response, error)
}

var globalHttpClient httpClient = &http.Client{Timeout: time.Second * 5}

// HttpEmitter posts signed events to a single configured endpoint. The
// body is signed with hmac-sha256 so the receiver can authenticate the
// sender without a shared session.
type HttpEmitter struct {
	endpoint string
	secret   []byte
	client   httpClient
}

func NewHttpEmitter(endpoint string, secret string) *HttpEmitter {
	emitter := new(HttpEmitter)
	emitter.endpoint = endpoint
	emitter.secret = []byte(secret)
	emitter.client = globalHttpClient
	return emitter
}

func (emitter *HttpEmitter) Emit(eventType string, payload interface{}) {
	event := Event{EventType: eventType, OccurredAt: time.Now(), Payload: payload}
	go emitter.deliver(event)
}

func (emitter *HttpEmitter) deliver(event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		logger.Warnf("Was not able to serialize event %s. Err: %v", event.EventType, err)
		return
	}

	request, err := http.NewRequest("POST", emitter.endpoint, bytes.NewReader(body))
	if err != nil {
		logger.Warnf("Was not able to build the webhook request. Err: %v", err)
		return
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set(signatureHeader, sign(emitter.secret, body))

	response, err := emitter.client.Do(request)
	if err != nil {
		logger.Warnf("Was not able to deliver event %s to %s. Err: %v", event.EventType, emitter.endpoint, err)
		return
	}
	defer response.Body.Close()
	if response.StatusCode >= 300 {
		logger.Warnf("Webhook endpoint %s answered %d for event %s.", emitter.endpoint, response.StatusCode, event.EventType)
	}
}

func sign(secret []byte, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// LogEmitter is used when no webhook endpoint is configured, so events
// still show up in the service log.
type LogEmitter struct{}

func NewLogEmitter() *LogEmitter {
	return new(LogEmitter)
}

func (emitter *LogEmitter) Emit(eventType string, payload interface{}) {
	logger.Infof("Event %s: %s", eventType, logging.PrettyPrintObject(payload))
}
