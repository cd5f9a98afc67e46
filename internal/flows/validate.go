package flows

import (
	"errors"

	"github.com/voyz/tokenauth/jwt"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureMalformed
	ValidateFailureSignature
	ValidateFailureExpired
	ValidateFailureClaims
)

// ValidateResult returns either claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
}

// ValidateDeps captures validation dependencies. Validation never touches
// the session store.
type ValidateDeps struct {
	ParseAccess func(string) (*jwt.AccessClaims, error)
}

// RunValidate verifies an access token with the codec alone.
func RunValidate(tokenStr string, deps ValidateDeps) ValidateResult {
	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		return ValidateResult{Failure: classifyParse(err), Err: err}
	}
	return ValidateResult{Claims: claims}
}

func classifyParse(err error) ValidateFailureKind {
	switch {
	case errors.Is(err, jwt.ErrInvalidSignature):
		return ValidateFailureSignature
	case errors.Is(err, jwt.ErrExpired):
		return ValidateFailureExpired
	case errors.Is(err, jwt.ErrMalformed):
		return ValidateFailureMalformed
	default:
		return ValidateFailureClaims
	}
}
