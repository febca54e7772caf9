// AngelaMos | 2026
// instance.go

package n8n

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidURL = errors.New("invalid n8n url")

// Instance is the downstream n8n deployment a request operates on. APIKey
// is plaintext and lives only for the duration of one request.
type Instance struct {
	URL        string
	APIKey     string
	InstanceID string
}

func (i *Instance) Valid() bool {
	return i != nil && i.URL != "" && i.APIKey != ""
}

type instanceKey struct{}

func WithInstance(ctx context.Context, inst *Instance) context.Context {
	return context.WithValue(ctx, instanceKey{}, inst)
}

func InstanceFromContext(ctx context.Context) (*Instance, bool) {
	inst, ok := ctx.Value(instanceKey{}).(*Instance)
	if !ok || !inst.Valid() {
		return nil, false
	}
	return inst, true
}

// NormalizeURL requires an absolute http or https URL and strips any
// trailing slash so API paths can be appended directly.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if u.User != nil {
		return "", fmt.Errorf("%w: credentials in url", ErrInvalidURL)
	}

	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}
