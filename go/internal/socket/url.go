package socket

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ErrNoIdentity is returned when no judge is signed in yet.
var ErrNoIdentity = errors.New("no judge signed in")

// ConnectionURL builds the live-scoring endpoint for a judge's device:
// <base>/dressage/application/v2/<judgeID>/<applicationID>?tk=<token>.
func ConnectionURL(base, judgeID string, applicationID uuid.UUID, token string) (string, error) {
	if judgeID == "" {
		return "", ErrNoIdentity
	}
	u, err := url.Parse(strings.TrimSuffix(base, "/") + "/dressage/application/v2/" +
		url.PathEscape(judgeID) + "/" + applicationID.String())
	if err != nil {
		return "", fmt.Errorf("invalid socket base url: %w", err)
	}
	q := u.Query()
	q.Set("tk", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redact strips the query so tokens never reach the logs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}
