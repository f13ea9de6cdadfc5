package store

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/osiDTDr/ai-contract-review/core/db"
)

//go:embed schema.sql
var schema string

// Migrate creates the review tables if they are missing. Statements are
// idempotent, so it runs on every server start.
func Migrate(ctx context.Context, conn db.DBTX) error {
	for _, stmt := range statements(schema) {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func statements(sql string) []string {
	var out []string
	for _, part := range strings.Split(sql, ";") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
