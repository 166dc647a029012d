package migrations

import "github.com/go-rel/rel"

func MigrateCreateConsents(schema *rel.Schema) {
	schema.CreateTable("consents", func(t *rel.Table) {
		t.String("id")
		t.String("user_id")
		t.String("intent_description")
		t.String("intent_hash")
		t.Float("max_amount")
		t.String("currency")
		t.JSON("allowed_merchants")
		t.JSON("allowed_categories")
		t.Bool("single_use")
		t.Bool("requires_confirmation")
		t.DateTime("created_at")
		t.DateTime("expires_at")
		t.DateTime("revoked_at")
		t.Bool("active")
		t.PrimaryKey("id")
	})
	schema.CreateIndex("consents", "consents_user_id_idx", []string{"user_id"})
}

func RollbackCreateConsents(schema *rel.Schema) {
	schema.DropTable("consents")
}
