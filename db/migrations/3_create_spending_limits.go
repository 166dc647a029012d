package migrations

import "github.com/go-rel/rel"

func MigrateCreateSpendingLimits(schema *rel.Schema) {
	schema.CreateTable("spending_limits", func(t *rel.Table) {
		t.ID("id")
		t.String("user_id")
		t.Float("daily_limit")
		t.Float("monthly_limit")
		t.Float("per_transaction_limit")
		t.Float("require_approval_above")
		t.Bool("active")
		t.DateTime("created_at")
		t.DateTime("updated_at")
	})
	schema.CreateUniqueIndex("spending_limits", "spending_limits_user_id_idx", []string{"user_id"})
}

func RollbackCreateSpendingLimits(schema *rel.Schema) {
	schema.DropTable("spending_limits")
}
