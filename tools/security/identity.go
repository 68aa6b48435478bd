package security

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	errs "PPGateway/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Identity is derived once per connection from a verified token.
type Identity struct {
	UserID              string
	DisplayNameFallback string
}

// ClaimExtractor returns "" when its claim is absent or unusable.
type ClaimExtractor func(claims jwtlib.MapClaims) string

// UserIDExtractors lists the claim names issued by the different upstream
// token shapes, most specific first. Order matters: the first non-empty wins.
var UserIDExtractors = []ClaimExtractor{
	ClaimString("profileId"),
	ClaimString("userId"),
	ClaimString("user_id"),
	ClaimString("id"),
	ClaimString("sub"),
}

var DisplayNameExtractors = []ClaimExtractor{
	ClaimString("displayName"),
	ClaimString("name"),
	ClaimString("username"),
	ClaimString("email"),
}

// ClaimString reads a string or integral number claim.
func ClaimString(name string) ClaimExtractor {
	return func(claims jwtlib.MapClaims) string {
		switch v := claims[name].(type) {
		case string:
			return strings.TrimSpace(v)
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return strconv.FormatInt(n, 10)
			}
			return v.String()
		case float64:
			if v == float64(int64(v)) {
				return strconv.FormatInt(int64(v), 10)
			}
			return strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return ""
		}
	}
}

// FirstNonEmpty runs the extractors in order.
func FirstNonEmpty(claims jwtlib.MapClaims, chain []ClaimExtractor) string {
	for _, ex := range chain {
		if v := ex(claims); v != "" {
			return v
		}
	}
	return ""
}

type Authenticator struct {
	opts        Options
	userID      []ClaimExtractor
	displayName []ClaimExtractor
}

func NewAuthenticator(opts Options) *Authenticator {
	return &Authenticator{
		opts:        opts,
		userID:      UserIDExtractors,
		displayName: DisplayNameExtractors,
	}
}

// Authenticate verifies token and derives the connection identity. Every
// failure carries the AuthenticationFailure code.
func (a *Authenticator) Authenticate(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, errs.ErrAuthFailed.WrapMsg("missing token")
	}
	claims, err := Verify(a.opts, token)
	if err != nil {
		return Identity{}, errs.ErrAuthFailed.WrapMsg(err.Error())
	}
	uid := FirstNonEmpty(claims, a.userID)
	if uid == "" {
		return Identity{}, errs.ErrAuthFailed.WrapMsg("token carries no user id claim")
	}
	name := FirstNonEmpty(claims, a.displayName)
	if name == "" {
		name = uid
	}
	return Identity{UserID: uid, DisplayNameFallback: name}, nil
}

// TokenFromRequest reads the handshake credential: the token query
// parameter first, then Authorization: Bearer.
func TokenFromRequest(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	return BearerToken(r.Header.Get("Authorization"))
}

func BearerToken(authz string) string {
	authz = strings.TrimSpace(authz)
	if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}
