// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the CRUD error taxonomy. Check them with errors.Is().
var (
	// ErrNotFound means a key did not resolve to a visible record. A record
	// that exists but is scoped out for the current principal produces the
	// same error, the two cases are indistinguishable on purpose.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means an access check ran and denied the operation, or
	// no principal could be resolved while access checks are enabled.
	ErrForbidden = errors.New("forbidden")

	// ErrMethodNotAllowed means the operation is disabled on this endpoint.
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// ConfigurationError indicates incomplete application wiring, for example an
// entity type that participates in access-controlled endpoints without
// implementing the required capability. It is a server-side fault and must
// never surface as a 4xx client error.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// Configurationf creates a ConfigurationError with a formatted reason
func Configurationf(format string, a ...interface{}) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, a...)}
}

// IsConfigurationError returns true if err is a ConfigurationError
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
