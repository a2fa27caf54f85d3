// Package identity extracts the user identity carried by identity-token claims and derives the
// organization it belongs to.
package identity

import (
	"fmt"
	"net"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/erpbridge/erpbridge/internal/connectors/registry"
	"golang.org/x/net/publicsuffix"
)

// EmailClaims are the claims consulted for the user's email, in order.
var EmailClaims = []string{"preferred_username", "email", "upn"}

// MissingIdentityClaimError is returned when no email-like claim is present.
type MissingIdentityClaimError struct {
	Checked []string
}

func (e *MissingIdentityClaimError) Error() string {
	return fmt.Sprintf("identity token has no email claim (checked %s)", strings.Join(e.Checked, ", "))
}

// EmailFromClaims returns the first email-like claim, normalized.
func EmailFromClaims(claims registry.Claims) (string, error) {
	for _, key := range EmailClaims {
		v := strings.ToLower(claims.String(key))
		if isEmail(v) {
			return v, nil
		}
	}
	return "", &MissingIdentityClaimError{Checked: EmailClaims}
}

func isEmail(v string) bool {
	local, domain, ok := strings.Cut(v, "@")
	return ok && local != "" && domain != "" && !strings.Contains(domain, "@")
}

// EmailDomain returns the lowercased domain part of email, or "".
func EmailDomain(email string) string {
	_, domain, ok := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@")
	if !ok {
		return ""
	}
	return strings.Trim(domain, ".")
}

// RegistrableDomain reduces a host to its registrable domain (eTLD+1), so that mail.acme.co.uk and
// acme.co.uk compare equal.
func RegistrableDomain(domain string) string {
	domain = strings.Trim(strings.ToLower(strings.TrimSpace(domain)), ".")
	if domain == "" || net.ParseIP(domain) != nil {
		return domain
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		return domain
	}
	return etld1
}

// OrganizationName derives a display name from an email domain: "acme.co.uk" becomes "Acme".
func OrganizationName(domain string) string {
	reg := RegistrableDomain(domain)
	if reg == "" {
		return ""
	}
	label := reg
	if suffix, _ := publicsuffix.PublicSuffix(reg); suffix != "" && suffix != reg {
		label = strings.TrimSuffix(reg, "."+suffix)
	}
	if i := strings.IndexByte(label, '.'); i >= 0 {
		label = label[:i]
	}
	r, size := utf8.DecodeRuneInString(label)
	return string(unicode.ToUpper(r)) + label[size:]
}
