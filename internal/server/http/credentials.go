package http

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/exius/internal/common"
)

// Credential names used in Authorization values.
const (
	credRelayName  = "relayName"
	credSubjectKey = "subjectKey"
	credGitHubKey  = "githubKey"
	credPassword   = "password"
	credRepository = "repository"

	bearerPrefix = "Bearer "
)

// parseCredentials reads an Authorization value of the form
// "name:value;name:value". Only the first colon of a pair separates name
// from value.
func parseCredentials(header string) (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range strings.Split(header, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: malformed authorization", common.ErrorUnauthorized)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

// requireCredentials parses header and checks that every name is present
// with a non-empty value. Password may be empty for relays without one.
func requireCredentials(header string, names ...string) (map[string]string, error) {
	creds, err := parseCredentials(header)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		v, ok := creds[n]
		if !ok || (v == "" && n != credPassword) {
			return nil, fmt.Errorf("%w: authorization must include %s", common.ErrorUnauthorized, n)
		}
	}
	return creds, nil
}
