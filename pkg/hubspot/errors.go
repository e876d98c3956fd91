package hubspot

import (
	"errors"
	"fmt"
)

// AuthExpiredError signals that the portal's access token was rejected and a
// refresh-token exchange should be attempted.
type AuthExpiredError struct {
	Body string
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("hubspot: access token expired: %s", e.Body)
}

// IsAuthExpired reports whether the error chain contains an AuthExpiredError.
func IsAuthExpired(err error) bool {
	var ae *AuthExpiredError
	return errors.As(err, &ae)
}

// NotFoundError signals that the requested record does not exist (or was
// archived). Packaging treats this as a skippable condition.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("hubspot: %s %s not found", e.Kind, e.ID)
}

// IsNotFound reports whether the error chain contains a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}
