package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/MrEthical07/goAuthz/permission"
)

const testRoles = `
roles:
  viewer: ["products:read"]
  editor: ["products:read", "products:update"]
  admin: ["products:*", "reports:export:finance"]
  super_admin: ["*"]
`

func TestRunEvaluate(t *testing.T) {
	table, err := permission.LoadTable(strings.NewReader(testRoles), nil)
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}

	tests := []struct {
		name string
		opts evaluateOptions
		want string
	}{
		{name: "exact", opts: evaluateOptions{role: "editor", resource: "products", action: "update"}, want: "allow rule=exact grant=products:update\n"},
		{name: "resource wildcard", opts: evaluateOptions{role: "admin", resource: "products", action: "delete"}, want: "allow rule=resource_wildcard grant=products:*\n"},
		{name: "global wildcard", opts: evaluateOptions{role: "super_admin", resource: "billing", action: "refund"}, want: "allow rule=global_wildcard grant=*\n"},
		{name: "none", opts: evaluateOptions{role: "viewer", resource: "products", action: "update"}, want: "deny rule=none\n"},
		{name: "inactive", opts: evaluateOptions{role: "super_admin", resource: "products", action: "read", inactive: true}, want: "deny rule=inactive\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := runEvaluate(&out, table, tc.opts); err != nil {
				t.Fatalf("runEvaluate failed: %v", err)
			}
			if out.String() != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, out.String())
			}
		})
	}
}

func TestRunEvaluateUnknownRole(t *testing.T) {
	table, err := permission.LoadTable(strings.NewReader(testRoles), nil)
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}
	var out bytes.Buffer
	if err := runEvaluate(&out, table, evaluateOptions{role: "owner", resource: "products", action: "read"}); err == nil {
		t.Fatal("expected unknown role to fail")
	}
}
