package service

import (
	"crypto/subtle"
	"strings"

	"github.com/cuongbtq/docjobs/internal/domain"
)

// Tenants is the allow-set of API keys. A key is its own tenant id.
type Tenants struct {
	keys []string
}

// NewTenants builds the allow-set, dropping blanks and surrounding spaces.
func NewTenants(keys []string) *Tenants {
	t := &Tenants{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			t.keys = append(t.keys, k)
		}
	}
	return t
}

// Authenticate resolves apiKey to a tenant id.
func (t *Tenants) Authenticate(apiKey string) (string, error) {
	if apiKey == "" {
		return "", domain.ErrUnauthorized
	}
	for _, k := range t.keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(apiKey)) == 1 {
			return k, nil
		}
	}
	return "", domain.ErrUnauthorized
}

// Len returns the number of configured keys
func (t *Tenants) Len() int {
	return len(t.keys)
}
