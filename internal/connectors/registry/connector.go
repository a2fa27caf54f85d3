package registry

import (
	"context"
	"fmt"
	"strings"
)

// ModuleCustom names the generic endpoint handler used for modules other than the built-in ones.
const ModuleCustom = "custom"

// Record is one upstream or canonical record.
type Record = map[string]any

// Tokens is the result of a code exchange or refresh.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims is a decoded identity-token payload. Claims are untrusted unless verified separately.
type Claims map[string]any

// String returns the trimmed string value of a claim, or "" when absent or not a string.
func (c Claims) String(key string) string {
	v, ok := c[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// FetchRequest describes one authenticated read against a resolved module endpoint.
type FetchRequest struct {
	AccessToken string
	Endpoint    string
	Filter      string
	Top         int
}

// FetchFunc reads provider-shaped records for one module.
type FetchFunc func(ctx context.Context, req FetchRequest) ([]Record, error)

// Connector is the capability contract every upstream adapter implements.
type Connector interface {
	Kind() string
	DisplayName() string

	// AuthURL returns the URL the user is sent to in order to start authentication.
	AuthURL(state string) (string, error)
	Authenticate(ctx context.Context, code string) (Tokens, error)
	RefreshToken(ctx context.Context, refreshToken string) (Tokens, error)

	Leads(ctx context.Context, req FetchRequest) ([]Record, error)
	Contacts(ctx context.Context, req FetchRequest) ([]Record, error)
	FinanceData(ctx context.Context, req FetchRequest) ([]Record, error)

	// ModuleHandlers maps module identifiers to the adapter's fetch functions. The ModuleCustom
	// entry, when present, serves any module without a dedicated handler.
	ModuleHandlers() map[string]FetchFunc

	DecodeIdentityToken(token string) (Claims, error)
}

// UnimplementedConnector fails every operation with ErrNotImplemented. Adapters embed it and
// override what they support.
type UnimplementedConnector struct{}

func notImplemented(op string) error {
	return fmt.Errorf("%s: %w", op, ErrNotImplemented)
}

func (UnimplementedConnector) AuthURL(string) (string, error) {
	return "", notImplemented("auth url")
}

func (UnimplementedConnector) Authenticate(context.Context, string) (Tokens, error) {
	return Tokens{}, notImplemented("authenticate")
}

func (UnimplementedConnector) RefreshToken(context.Context, string) (Tokens, error) {
	return Tokens{}, notImplemented("refresh token")
}

func (UnimplementedConnector) Leads(context.Context, FetchRequest) ([]Record, error) {
	return nil, notImplemented("leads")
}

func (UnimplementedConnector) Contacts(context.Context, FetchRequest) ([]Record, error) {
	return nil, notImplemented("contacts")
}

func (UnimplementedConnector) FinanceData(context.Context, FetchRequest) ([]Record, error) {
	return nil, notImplemented("finance data")
}

func (UnimplementedConnector) ModuleHandlers() map[string]FetchFunc {
	return map[string]FetchFunc{}
}

func (UnimplementedConnector) DecodeIdentityToken(string) (Claims, error) {
	return nil, notImplemented("decode identity token")
}

// Fetch dispatches a module read through the connector's handler table.
func Fetch(ctx context.Context, c Connector, module string, req FetchRequest) ([]Record, error) {
	module = strings.ToLower(strings.TrimSpace(module))
	handlers := c.ModuleHandlers()
	if fn, ok := handlers[module]; ok {
		return fn(ctx, req)
	}
	if fn, ok := handlers[ModuleCustom]; ok {
		return fn(ctx, req)
	}
	return nil, fmt.Errorf("%s module %q: %w", c.Kind(), module, ErrNotImplemented)
}
