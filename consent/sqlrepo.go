package consent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-rel/rel"
	"github.com/go-rel/rel/where"

	"github.com/agentauth/consent-pdp/model"
	dbModel "github.com/agentauth/consent-pdp/sql"
)

// SqlRepo persists consents through go-rel, keyed by the consent id.
type SqlRepo struct {
	repo *rel.Repository
}

func NewSqlRepository(repository rel.Repository) *SqlRepo {
	sqlRepo := new(SqlRepo)
	sqlRepo.repo = &repository
	return sqlRepo
}

func (sqlRepo SqlRepo) CreateConsent(ctx context.Context, consent model.Consent) (httpErr model.HttpError) {
	if consent.ConsentId == "" {
		return model.HttpError{Status: http.StatusBadRequest, Message: "Consent id is required.", RootError: nil}
	}

	err := (*sqlRepo.repo).Find(ctx, &dbModel.Consent{}, where.Eq("id", consent.ConsentId))
	if err == nil {
		logger.Debugf("Consent %s already exists.", consent.ConsentId)
		return model.HttpError{Status: http.StatusConflict, Message: "Consent already exists.", RootError: nil}
	}
	if !errors.Is(err, rel.ErrNotFound) {
		return model.HttpError{Status: http.StatusInternalServerError, Message: "Was not able to check for an existing consent.", RootError: err}
	}

	sqlConsent := toSqlConsent(consent)
	err = (*sqlRepo.repo).Insert(ctx, &sqlConsent)
	if err != nil {
		return model.HttpError{Status: http.StatusInternalServerError, Message: "Was not able to store consent.", RootError: err}
	}
	return httpErr
}

func (sqlRepo SqlRepo) GetConsent(ctx context.Context, consentId string) (consent model.Consent, httpErr model.HttpError) {
	sqlConsent, httpErr := sqlRepo.getSqlConsent(ctx, consentId)
	if httpErr != (model.HttpError{}) {
		return consent, httpErr
	}
	return fromSqlConsent(sqlConsent), httpErr
}

func (sqlRepo SqlRepo) GetActiveConsent(ctx context.Context, consentId string) (consent model.Consent, httpErr model.HttpError) {
	consent, httpErr = sqlRepo.GetConsent(ctx, consentId)
	if httpErr != (model.HttpError{}) {
		return consent, httpErr
	}
	if !consent.Active || consent.RevokedAt != nil {
		return model.Consent{}, model.HttpError{Status: http.StatusNotFound, Message: fmt.Sprintf("Consent %s is not active.", consentId), RootError: nil}
	}
	return consent, httpErr
}

func (sqlRepo SqlRepo) RevokeConsent(ctx context.Context, consentId string, revokedAt time.Time) (httpErr model.HttpError) {
	sqlConsent, httpErr := sqlRepo.getSqlConsent(ctx, consentId)
	if httpErr != (model.HttpError{}) {
		return httpErr
	}
	sqlConsent.RevokedAt = &revokedAt
	sqlConsent.Active = false

	err := (*sqlRepo.repo).Update(ctx, &sqlConsent)
	if err != nil {
		return model.HttpError{Status: http.StatusInternalServerError, Message: fmt.Sprintf("Was not able to revoke consent %s.", consentId), RootError: err}
	}
	return httpErr
}

func (sqlRepo SqlRepo) getSqlConsent(ctx context.Context, consentId string) (consent dbModel.Consent, httpErr model.HttpError) {
	var dbConsent dbModel.Consent = dbModel.Consent{}
	err := (*sqlRepo.repo).Find(ctx, &dbConsent, where.Eq("id", consentId))
	if errors.Is(err, rel.ErrNotFound) {
		return consent, model.HttpError{Status: http.StatusNotFound, Message: fmt.Sprintf("Consent %s not found.", consentId), RootError: nil}
	}
	if err != nil {
		return consent, model.HttpError{Status: http.StatusInternalServerError, Message: fmt.Sprintf("Was not able to query for consent %s.", consentId), RootError: err}
	}
	return dbConsent, httpErr
}

func toSqlConsent(consent model.Consent) dbModel.Consent {
	merchants, _ := json.Marshal(consent.Constraints.AllowedMerchants)
	categories, _ := json.Marshal(consent.Constraints.AllowedCategories)
	return dbModel.Consent{
		ID:                   consent.ConsentId,
		UserId:               consent.UserId,
		IntentDescription:    consent.IntentDescription,
		IntentHash:           consent.IntentHash,
		MaxAmount:            consent.Constraints.MaxAmount,
		Currency:             consent.Constraints.Currency,
		AllowedMerchants:     string(merchants),
		AllowedCategories:    string(categories),
		SingleUse:            consent.Scope.SingleUse,
		RequiresConfirmation: consent.Scope.RequiresConfirmation,
		CreatedAt:            consent.CreatedAt,
		ExpiresAt:            consent.ExpiresAt,
		RevokedAt:            consent.RevokedAt,
		Active:               consent.Active,
	}
}

func fromSqlConsent(sqlConsent dbModel.Consent) model.Consent {
	consent := model.Consent{
		ConsentId:         sqlConsent.ID,
		UserId:            sqlConsent.UserId,
		IntentDescription: sqlConsent.IntentDescription,
		IntentHash:        sqlConsent.IntentHash,
		Constraints: model.ConsentConstraints{
			MaxAmount: sqlConsent.MaxAmount,
			Currency:  sqlConsent.Currency,
		},
		Scope: model.ConsentScope{
			SingleUse:            sqlConsent.SingleUse,
			RequiresConfirmation: sqlConsent.RequiresConfirmation,
		},
		CreatedAt: sqlConsent.CreatedAt,
		ExpiresAt: sqlConsent.ExpiresAt,
		RevokedAt: sqlConsent.RevokedAt,
		Active:    sqlConsent.Active,
	}
	if sqlConsent.AllowedMerchants != "" {
		json.Unmarshal([]byte(sqlConsent.AllowedMerchants), &consent.Constraints.AllowedMerchants)
	}
	if sqlConsent.AllowedCategories != "" {
		json.Unmarshal([]byte(sqlConsent.AllowedCategories), &consent.Constraints.AllowedCategories)
	}
	return consent
}
