// Package identity looks borrowers up in the campus directory. It's used
// only to enrich borrowing and reservation reads with display fields; a
// failed lookup never fails the read.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// User is the directory's view of a borrower.
type User struct {
	ID                 int     `json:"id"`
	FullName           string  `json:"full_name"`
	Email              string  `json:"email"`
	DepartmentName     *string `json:"department_name,omitempty"`
	RegistrationNumber *string `json:"registration_number,omitempty"`
}

// Directory resolves user IDs to display records.
type Directory interface {
	GetUser(ctx context.Context, userID int) (*User, error)
}

// HTTPDirectory talks to the campus identity service.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (d *HTTPDirectory) GetUser(ctx context.Context, userID int) (*User, error) {
	url := fmt.Sprintf("%s/users/%d", d.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Errorf("identity: unexpected status %d from directory", resp.StatusCode)
	}

	user := &User{}
	if err := json.NewDecoder(resp.Body).Decode(user); err != nil {
		return nil, errors.WithStack(err)
	}

	return user, nil
}

// NoopDirectory resolves nobody. Used when no identity service is
// configured and in tests.
type NoopDirectory struct{}

func (NoopDirectory) GetUser(ctx context.Context, userID int) (*User, error) {
	return nil, nil
}

// FromConfig picks the directory implementation for the given service URL.
func FromConfig(identityServiceURL string) Directory {
	if identityServiceURL == "" {
		return NoopDirectory{}
	}
	return NewHTTPDirectory(identityServiceURL)
}
