package session

import "strings"

// Credentials carries the authentication identity for one backend session.
// ProxyUser supports the proxy syntax "user[proxy]", where the session
// authenticates as user but acts as proxy.
type Credentials struct {
	User      string
	ProxyUser string
	Password  string
}

// ParseUser splits the proxy syntax "user[proxy]" into its parts. A plain
// username is returned unchanged with an empty proxy.
func ParseUser(user string) (name, proxy string) {
	open := strings.IndexByte(user, '[')
	if open == -1 || !strings.HasSuffix(user, "]") {
		return user, ""
	}
	return user[:open], user[open+1 : len(user)-1]
}

// NewCredentials builds credentials from a username (possibly in proxy
// syntax) and password.
func NewCredentials(user, password string) Credentials {
	name, proxy := ParseUser(user)
	return Credentials{User: name, ProxyUser: proxy, Password: password}
}

// IsZero reports whether no identity was supplied.
func (c Credentials) IsZero() bool {
	return c.User == "" && c.ProxyUser == "" && c.Password == ""
}

// Key returns the reuse-partition key for the identity. Sessions are only
// matched across acquisitions presenting the same key.
func (c Credentials) Key() string {
	if c.ProxyUser == "" {
		return c.User
	}
	return c.User + "[" + c.ProxyUser + "]"
}
