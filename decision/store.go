package decision

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-rel/rel"
	"github.com/go-rel/rel/where"

	"github.com/agentauth/consent-pdp/logging"
	"github.com/agentauth/consent-pdp/model"
	dbModel "github.com/agentauth/consent-pdp/sql"
)

var logger = logging.Log()

// AuthorizationStore is the durable audit record behind the in-memory
// authorization cache. It is only written through the write-behind
// queue, decisions never wait for it.
type AuthorizationStore interface {
	UpsertAuthorizations(ctx context.Context, authorizations []model.Authorization) error
	GetAuthorization(ctx context.Context, id string) (model.Authorization, model.HttpError)
}

// InMemoryStore keeps the audit records in process, used for tests and
// single-node deployments without a database.
type InMemoryStore struct {
	mutex          sync.RWMutex
	authorizations map[string]model.Authorization
}

func NewInMemoryStore() *InMemoryStore {
	store := new(InMemoryStore)
	store.authorizations = map[string]model.Authorization{}
	return store
}

func (store *InMemoryStore) UpsertAuthorizations(ctx context.Context, authorizations []model.Authorization) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	for _, authorization := range authorizations {
		store.authorizations[authorization.Id] = authorization
	}
	return nil
}

func (store *InMemoryStore) GetAuthorization(ctx context.Context, id string) (authorization model.Authorization, httpErr model.HttpError) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	authorization, exists := store.authorizations[id]
	if !exists {
		return authorization, model.HttpError{Status: http.StatusNotFound, Message: fmt.Sprintf("Authorization %s not found.", id), RootError: nil}
	}
	return authorization, httpErr
}

// SqlStore persists the audit records through go-rel. A whole batch is
// written in one transaction, so a flush either lands completely or can
// be retried on the next tick.
type SqlStore struct {
	repo *rel.Repository
}

func NewSqlStore(repository rel.Repository) *SqlStore {
	store := new(SqlStore)
	store.repo = &repository
	return store
}

func (store *SqlStore) UpsertAuthorizations(ctx context.Context, authorizations []model.Authorization) error {
	return (*store.repo).Transaction(ctx, func(ctx context.Context) error {
		for _, authorization := range authorizations {
			sqlAuthorization := toSqlAuthorization(authorization)

			var existing dbModel.Authorization
			err := (*store.repo).Find(ctx, &existing, where.Eq("id", authorization.Id))
			if err != nil {
				if err := (*store.repo).Insert(ctx, &sqlAuthorization); err != nil {
					return err
				}
				continue
			}
			if err := (*store.repo).Update(ctx, &sqlAuthorization); err != nil {
				return err
			}
		}
		return nil
	})
}

func (store *SqlStore) GetAuthorization(ctx context.Context, id string) (authorization model.Authorization, httpErr model.HttpError) {
	var sqlAuthorization dbModel.Authorization
	err := (*store.repo).Find(ctx, &sqlAuthorization, where.Eq("id", id))
	if err != nil {
		return authorization, model.HttpError{Status: http.StatusNotFound, Message: fmt.Sprintf("Authorization %s not found.", id), RootError: nil}
	}
	return fromSqlAuthorization(sqlAuthorization), httpErr
}

func toSqlAuthorization(authorization model.Authorization) dbModel.Authorization {
	return dbModel.Authorization{
		ID:                authorization.Id,
		AuthorizationCode: authorization.AuthorizationCode,
		ConsentId:         authorization.ConsentId,
		Decision:          authorization.Decision,
		DenialReason:      authorization.DenialReason,
		Amount:            authorization.Amount,
		Currency:          authorization.Currency,
		MerchantId:        authorization.MerchantId,
		MerchantCategory:  authorization.MerchantCategory,
		Action:            authorization.Action,
		CreatedAt:         authorization.CreatedAt,
		ExpiresAt:         authorization.ExpiresAt,
		UsedAt:            authorization.UsedAt,
		IsUsed:            authorization.IsUsed,
		VerifiedAt:        authorization.VerifiedAt,
		VerifiedBy:        authorization.VerifiedBy,
	}
}

func fromSqlAuthorization(sqlAuthorization dbModel.Authorization) model.Authorization {
	return model.Authorization{
		Id:                sqlAuthorization.ID,
		AuthorizationCode: sqlAuthorization.AuthorizationCode,
		ConsentId:         sqlAuthorization.ConsentId,
		Decision:          sqlAuthorization.Decision,
		DenialReason:      sqlAuthorization.DenialReason,
		Amount:            sqlAuthorization.Amount,
		Currency:          sqlAuthorization.Currency,
		MerchantId:        sqlAuthorization.MerchantId,
		MerchantCategory:  sqlAuthorization.MerchantCategory,
		Action:            sqlAuthorization.Action,
		CreatedAt:         sqlAuthorization.CreatedAt,
		ExpiresAt:         sqlAuthorization.ExpiresAt,
		UsedAt:            sqlAuthorization.UsedAt,
		IsUsed:            sqlAuthorization.IsUsed,
		VerifiedAt:        sqlAuthorization.VerifiedAt,
		VerifiedBy:        sqlAuthorization.VerifiedBy,
	}
}
