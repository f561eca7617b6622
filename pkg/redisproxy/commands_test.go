package redisproxy

import "testing"

func TestCommandFamily(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"ping", FamilyPing},
		{"set", FamilyStrings},
		{"GET", FamilyStrings},
		{"ttl", FamilyStrings},
		{"hset", FamilyHashes},
		{"hget", FamilyHashes},
		{"lpush", FamilyLists},
		{"lpop", FamilyLists},
		{"sadd", FamilySets},
		{"srem", FamilySets},
		{"flushall", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			if got := CommandFamily(tt.command); got != tt.want {
				t.Errorf("CommandFamily(%q) = %q, want %q", tt.command, got, tt.want)
			}
		})
	}
}
