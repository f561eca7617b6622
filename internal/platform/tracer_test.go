package platform

import "testing"

func TestQueryVerb(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"SELECT 1", "select"},
		{"  select *\nfrom users", "select"},
		{"INSERT INTO users VALUES ($1)", "insert"},
		{"UPDATE organizations SET name = $1", "update"},
		{"DELETE FROM api_keys", "delete"},
		{"TRUNCATE audit_log", "other"},
		{"", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.sql, func(t *testing.T) {
			if got := queryVerb(tt.sql); got != tt.want {
				t.Errorf("queryVerb(%q) = %q, want %q", tt.sql, got, tt.want)
			}
		})
	}
}
