package auth

import (
	"fmt"
	"sort"
	"strings"
)

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Directory is the read-only user list the identity service provisions.
// Entries are configured as "id:name:role".
type Directory struct {
	users []User
}

func ParseDirectory(entries []string) (*Directory, error) {
	seen := map[string]bool{}
	users := make([]User, 0, len(entries))
	for _, e := range entries {
		parts := strings.SplitN(e, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("user entry %q: want id:name:role", e)
		}
		u := User{ID: strings.TrimSpace(parts[0]), Name: strings.TrimSpace(parts[1]), Role: Role(strings.TrimSpace(parts[2]))}
		if u.ID == "" || !u.Role.Valid() {
			return nil, fmt.Errorf("user entry %q: empty id or unknown role", e)
		}
		if seen[u.ID] {
			return nil, fmt.Errorf("user %q listed twice", u.ID)
		}
		seen[u.ID] = true
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return &Directory{users: users}, nil
}

func (d *Directory) List() []User {
	return append([]User(nil), d.users...)
}
