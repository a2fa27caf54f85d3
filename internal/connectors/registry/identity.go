package registry

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt"
)

// DecodeIdentityToken parses the claims of a header.payload.signature token. The signature is
// not checked; the claims are display hints only.
func DecodeIdentityToken(token string) (Claims, error) {
	claims := jwt.MapClaims{}
	tok, _, err := new(jwt.Parser).ParseUnverified(strings.TrimSpace(token), claims)
	if err != nil && !unverifiableOnly(err) {
		return nil, decodeError(tok, err)
	}
	if len(claims) == 0 {
		return nil, &IdentityDecodeError{Reason: "payload is empty"}
	}
	return Claims(claims), nil
}

// unverifiableOnly reports whether the token decoded but names a signing method this build does
// not know. The claims are still usable since nothing is verified here.
func unverifiableOnly(err error) bool {
	var ve *jwt.ValidationError
	return errors.As(err, &ve) && ve.Errors == jwt.ValidationErrorUnverifiable
}

func decodeError(tok *jwt.Token, err error) error {
	var ve *jwt.ValidationError
	if !errors.As(err, &ve) || ve.Inner == nil {
		return &IdentityDecodeError{Reason: "malformed token", Err: err}
	}
	segment := "payload"
	if tok == nil || tok.Header == nil {
		segment = "header"
	}
	var corrupt base64.CorruptInputError
	if errors.As(ve.Inner, &corrupt) {
		return &IdentityDecodeError{Reason: segment + " is not base64url", Err: ve.Inner}
	}
	return &IdentityDecodeError{Reason: segment + " is not a JSON object", Err: ve.Inner}
}
