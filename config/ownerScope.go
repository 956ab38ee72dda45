package config

import (
	"context"
	"strings"

	"github.com/mmdatafocus/ledger_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OwnerScopePlugin scopes queries, updates and deletes to the request's
// user_id when the model has a user_id column.
//
// NOTE:
// - Raw SQL is not scoped. Those queries must filter user_id themselves.
// - Batch jobs bypass the scope explicitly via appctx.ContextKeySkipOwnerScope.
type OwnerScopePlugin struct{}

func NewOwnerScopePlugin() *OwnerScopePlugin { return &OwnerScopePlugin{} }

func (p *OwnerScopePlugin) Name() string { return "owner_scope" }

func (p *OwnerScopePlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("owner_scope:query", ownerScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("owner_scope:row", ownerScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("owner_scope:update", ownerScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("owner_scope:delete", ownerScopeCallback); err != nil {
		return err
	}
	return nil
}

func ownerScopeCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil || shouldBypassOwnerScope(ctx) {
		return
	}
	userId := userIdFromContext(ctx)
	if userId == "" {
		return
	}

	if db.Statement.Schema == nil {
		return
	}
	if _, ok := db.Statement.Schema.FieldsByDBName["user_id"]; !ok {
		return
	}

	// an explicit filter already scopes the statement
	if whereHasUserId(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "user_id"},
				Value:  userId,
			},
		},
	})
}

func userIdFromContext(ctx context.Context) string {
	v, _ := appctx.GetString(ctx, appctx.ContextKeyUserId)
	return v
}

func shouldBypassOwnerScope(ctx context.Context) bool {
	v, _ := appctx.GetBool(ctx, appctx.ContextKeySkipOwnerScope)
	return v
}

func whereHasUserId(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasUserId(e) {
			return true
		}
	}
	return false
}

func exprHasUserId(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsUserId(v.Column)
	case clause.IN:
		return colIsUserId(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasUserId(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		return strings.Contains(strings.ToLower(v.SQL), "user_id")
	default:
		return false
	}
}

func colIsUserId(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "user_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "user_id")
	default:
		return false
	}
}
