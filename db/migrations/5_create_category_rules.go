package migrations

import "github.com/go-rel/rel"

func MigrateCreateCategoryRules(schema *rel.Schema) {
	schema.CreateTable("category_rules", func(t *rel.Table) {
		t.ID("id")
		t.String("rule_id")
		t.String("user_id")
		t.String("category")
		t.String("action")
		t.Bool("active")
		t.DateTime("created_at")
	})
	schema.CreateIndex("category_rules", "category_rules_user_id_idx", []string{"user_id"})
}

func RollbackCreateCategoryRules(schema *rel.Schema) {
	schema.DropTable("category_rules")
}
