// Package auth implements the broker's static shared-secret
// authentication: a set of acceptable Authorization header values,
// assembled once at startup from Basic and Bearer credential entries.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// ConfigError is returned when a credential entry is malformed.
type ConfigError struct {
	Entry string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid auth credential %q: %v", e.Entry, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// CredentialSet holds every acceptable Authorization header value. An
// empty set means the broker is unauthenticated.
type CredentialSet struct {
	values map[string]struct{}
}

// NewCredentialSet builds an empty set.
func NewCredentialSet() *CredentialSet {
	return &CredentialSet{values: make(map[string]struct{})}
}

// AddBasic registers "user:pass" entries as Basic credentials. An entry
// missing the colon is a ConfigError, fatal during startup.
func (c *CredentialSet) AddBasic(entries []string) error {
	for _, entry := range entries {
		user, pass, ok := strings.Cut(entry, ":")
		if !ok {
			return &ConfigError{Entry: entry, Err: fmt.Errorf("missing ':' separator")}
		}
		encoded := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		c.values["Basic "+encoded] = struct{}{}
	}
	return nil
}

// AddBearer registers raw tokens as Bearer credentials.
func (c *CredentialSet) AddBearer(entries []string) {
	for _, token := range entries {
		c.values["Bearer "+token] = struct{}{}
	}
}

// Empty reports whether no credentials were configured, in which case
// every request passes unauthenticated.
func (c *CredentialSet) Empty() bool {
	return len(c.values) == 0
}

// Allows reports whether header is one of the configured credentials.
func (c *CredentialSet) Allows(header string) bool {
	_, ok := c.values[header]
	return ok
}

// Middleware wraps next so that, when c is non-empty, requests without a
// matching Authorization header are rejected with 403 before next runs.
func (c *CredentialSet) Middleware(logger *logrus.Entry, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !c.Empty() && !c.Allows(r.Header.Get("Authorization")) {
			logger.WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
			}).Warn("request with invalid auth credentials blocked")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"error": "Not authorized"})
			return
		}
		next(w, r)
	}
}
