package server

import (
	"strings"
	"testing"
)

func TestAtoRole(t *testing.T) {
	var table = []struct {
		input  string
		output Role
	}{
		{"read", RoleRead},
		{"Read", RoleRead},
		{"Write", RoleWrite},
		{"write", RoleWrite},
		{"admin", RoleAdmin},
		{"Admin", RoleAdmin},
		{"other", RoleUnknown},
	}

	for _, row := range table {
		result := atoRole(row.input)
		if result != row.output {
			t.Errorf("For %v received %v, expected %v", row.input, result, row.output)
		}
	}
}

func TestListDecoder(t *testing.T) {
	const list = `
# sample token file
alice  admin  token-alice
bob    write  token-bob

carol  read   token-carol
malformed line
`
	d, err := NewListDecoder(strings.NewReader(list))
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}

	var table = []struct {
		token string
		user  string
		role  Role
	}{
		{"token-alice", "alice", RoleAdmin},
		{"token-bob", "bob", RoleWrite},
		{"token-carol", "carol", RoleRead},
		{"nope", "", RoleUnknown},
		{"", "", RoleUnknown},
	}
	for _, test := range table {
		user, role, err := d.TokenDecode(test.token)
		if err != nil {
			t.Errorf("Received %s", err.Error())
			continue
		}
		if user != test.user || role != test.role {
			t.Errorf("For %q received (%s, %v), expected (%s, %v)",
				test.token, user, role, test.user, test.role)
		}
	}
}

func TestNobodyDecoder(t *testing.T) {
	d := NewNobodyDecoder()
	user, role, err := d.TokenDecode("anything at all")
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	if user != "nobody" || role != RoleAdmin {
		t.Errorf("Received (%s, %v), expected (nobody, RoleAdmin)", user, role)
	}
}
