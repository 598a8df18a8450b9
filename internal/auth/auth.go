package auth

import "strings"

// Authenticator is the external credential check consumed by sessions.
// The session only cares about the boolean outcome.
type Authenticator interface {
	Authenticate(username, password string) bool
}

// Static checks credentials against a fixed map.
type Static struct {
	creds map[string]string
}

func NewStatic(creds map[string]string) *Static {
	return &Static{creds: creds}
}

func (s *Static) Authenticate(username, password string) bool {
	want, ok := s.creds[username]
	return ok && want == password
}

// ParseCredentials parses "user:pass,user2:pass2" from configuration.
// Malformed entries are skipped.
func ParseCredentials(raw string) map[string]string {
	creds := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		user, pass, ok := strings.Cut(entry, ":")
		if !ok || user == "" {
			continue
		}
		creds[user] = pass
	}
	return creds
}
