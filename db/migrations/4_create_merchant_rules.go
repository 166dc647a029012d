package migrations

import "github.com/go-rel/rel"

func MigrateCreateMerchantRules(schema *rel.Schema) {
	schema.CreateTable("merchant_rules", func(t *rel.Table) {
		t.ID("id")
		t.String("rule_id")
		t.String("user_id")
		t.String("merchant_pattern")
		t.String("action")
		t.String("description")
		t.Bool("active")
		t.DateTime("created_at")
	})
	schema.CreateIndex("merchant_rules", "merchant_rules_user_id_idx", []string{"user_id"})
}

func RollbackCreateMerchantRules(schema *rel.Schema) {
	schema.DropTable("merchant_rules")
}
