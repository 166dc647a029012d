package model

// decision outcomes returned to the caller

const (
	DecisionAllow  = "ALLOW"
	DecisionDeny   = "DENY"
	DecisionStepUp = "STEP_UP"
)

// stable, machine-readable denial reasons

const (
	ReasonTokenMalformed        = "token_malformed"
	ReasonTokenInvalidSignature = "token_invalid_signature"
	ReasonTokenExpired          = "token_expired"
	ReasonAmountExceeded        = "amount_exceeded"
	ReasonCurrencyMismatch      = "currency_mismatch"
	ReasonMerchantNotAllowed    = "merchant_not_allowed"
	ReasonCategoryNotAllowed    = "category_not_allowed"
	ReasonConsentInvalid        = "consent_invalid"
	ReasonConsentUnavailable    = "consent_unavailable"
	ReasonPerTransactionLimit   = "per_transaction_limit_exceeded"
	ReasonDailyLimitExceeded    = "daily_limit_exceeded"
	ReasonMonthlyLimitExceeded  = "monthly_limit_exceeded"
	ReasonAlreadyUsed           = "authorization_already_used"
	ReasonCodeUnknown           = "authorization_unknown"
	ReasonCodeExpired           = "authorization_expired"
	ReasonTransactionMismatch   = "transaction_mismatch"
)

// TransactionContext is the concrete transaction a token or an
// authorization code is checked against.
type TransactionContext struct {
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
	MerchantId       string  `json:"merchantId"`
	MerchantCategory string  `json:"merchantCategory,omitempty"`
}

// VerificationOutcome is the result of a pure capability-token verification.
type VerificationOutcome struct {
	Valid     bool   `json:"valid"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
	ConsentId string `json:"consentId,omitempty"`
	Principal string `json:"principal,omitempty"`
}

// Decision as answered by the rules engine.
type Decision struct {
	Allowed               bool   `json:"allowed"`
	Reason                string `json:"reason,omitempty"`
	Message               string `json:"message,omitempty"`
	RequiresHumanApproval bool   `json:"requiresHumanApproval,omitempty"`
	RulesEvaluated        int    `json:"rulesEvaluated"`
}

type HttpError struct {
	Status    int
	Message   string
	RootError error
}

func (err *HttpError) Error() string {
	return err.Message
}

func (err *HttpError) GetRoot() error {
	return err.RootError
}

type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}
