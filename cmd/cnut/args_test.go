// ABOUTME: Tests for the subcommand argument parser
// ABOUTME: Covers value flags, boolean flags and error cases

package main

import (
	"reflect"
	"testing"
)

func TestParseArgs(t *testing.T) {
	known := map[string]bool{"password": false, "email": true, "reason": true}

	tests := []struct {
		name       string
		args       []string
		positional []string
		values     map[string]string
		bools      map[string]bool
	}{
		{"positional only", []string{"madeline"}, []string{"madeline"}, map[string]string{}, map[string]bool{}},
		{"separate value", []string{"madeline", "--email", "m@example.com"}, []string{"madeline"},
			map[string]string{"email": "m@example.com"}, map[string]bool{}},
		{"inline value", []string{"--reason=too fast", "theo"}, []string{"theo"},
			map[string]string{"reason": "too fast"}, map[string]bool{}},
		{"bool flag", []string{"madeline", "--password"}, []string{"madeline"},
			map[string]string{}, map[string]bool{"password": true}},
		{"double dash", []string{"--", "--password"}, []string{"--password"}, map[string]string{}, map[string]bool{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArgs(tt.args, known)
			if err != nil {
				t.Fatalf("parseArgs() error = %v", err)
			}
			if len(got.positional) != len(tt.positional) || (len(tt.positional) > 0 && !reflect.DeepEqual(got.positional, tt.positional)) {
				t.Errorf("positional = %v, want %v", got.positional, tt.positional)
			}
			if !reflect.DeepEqual(got.values, tt.values) {
				t.Errorf("values = %v, want %v", got.values, tt.values)
			}
			if !reflect.DeepEqual(got.bools, tt.bools) {
				t.Errorf("bools = %v, want %v", got.bools, tt.bools)
			}
		})
	}
}

func TestParseArgs_Errors(t *testing.T) {
	known := map[string]bool{"password": false, "email": true}

	for _, args := range [][]string{
		{"--unknown"},
		{"--email"},
		{"--password=yes"},
	} {
		if _, err := parseArgs(args, known); err == nil {
			t.Errorf("parseArgs(%v) expected error", args)
		}
	}
}

func TestUserCommandsRegistered(t *testing.T) {
	for _, name := range []string{
		"create-user", "reset-key", "remove-user", "op", "deop", "rename",
		"ban", "unban", "info", "cleanup", "passwd", "avatar", "list",
	} {
		if _, ok := userCommands[name]; !ok {
			t.Errorf("command %q not registered", name)
		}
	}
}
