package auth

import "errors"

var (
	// ErrUnauthenticated means the credential is missing, malformed,
	// expired or unresolvable.
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	// ErrForbidden means the credential resolves to an identity that lacks
	// permission for the resource, method or item.
	ErrForbidden = errors.New("auth: forbidden")

	// ErrConfiguration marks malformed resource metadata. Raised at
	// registration time and treated as fatal, never decided per request.
	ErrConfiguration = errors.New("auth: invalid resource configuration")

	// ErrResolution means ownership could not be determined because a
	// referenced related object is missing or the store failed. Externally
	// indistinguishable from ErrForbidden; logged with detail internally.
	ErrResolution = errors.New("auth: ownership resolution failed")

	// ErrInvalidToken indicates a token that does not identify an active
	// session.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrInvalidCredentials is returned for any failed login. Wrong user
	// and wrong password are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)
