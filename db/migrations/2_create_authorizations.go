package migrations

import "github.com/go-rel/rel"

func MigrateCreateAuthorizations(schema *rel.Schema) {
	schema.CreateTable("authorizations", func(t *rel.Table) {
		t.String("id")
		t.String("authorization_code")
		t.String("consent_id")
		t.String("decision")
		t.String("denial_reason")
		t.Float("amount")
		t.String("currency")
		t.String("merchant_id")
		t.String("merchant_category")
		t.String("action")
		t.DateTime("created_at")
		t.DateTime("expires_at")
		t.DateTime("used_at")
		t.Bool("is_used")
		t.DateTime("verified_at")
		t.String("verified_by")
		t.PrimaryKey("id")
	})
	schema.CreateIndex("authorizations", "authorizations_consent_id_idx", []string{"consent_id"})
	schema.CreateIndex("authorizations", "authorizations_code_idx", []string{"authorization_code"})
}

func RollbackCreateAuthorizations(schema *rel.Schema) {
	schema.DropTable("authorizations")
}
