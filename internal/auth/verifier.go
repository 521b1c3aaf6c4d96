// Package auth provides bearer-token verification helpers.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Roles understood by the API.
const (
	RoleAdmin      = "admin"
	RoleDispatcher = "dispatcher"
	RoleDriver     = "driver"
)

var ErrUnauthorized = errors.New("unauthorized")

// Verifier validates bearer tokens and extracts the caller's role.
// Supports modes: none (everyone is admin), dev (token is subject:role),
// hmac (HS256 JWT).
type Verifier struct {
	Mode       string
	HMACSecret []byte
	RoleClaim  string
	now        func() time.Time
}

type Principal struct {
	Subject string
	Role    string
}

// Has reports whether the principal holds one of roles. Admin holds all.
func (p Principal) Has(roles ...string) bool {
	if p.Role == RoleAdmin {
		return true
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

func NewVerifier(mode, secret string) *Verifier {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "none"
	}
	return &Verifier{Mode: mode, HMACSecret: []byte(secret), RoleClaim: "role", now: time.Now}
}

// Enabled reports whether requests must carry a token.
func (v *Verifier) Enabled() bool { return v != nil && v.Mode != "none" }

// FromHeader verifies an Authorization header value.
func (v *Verifier) FromHeader(authz string) (Principal, error) {
	if !v.Enabled() {
		return Principal{Subject: "anonymous", Role: RoleAdmin}, nil
	}
	if len(authz) < 7 || !strings.EqualFold(authz[:7], "bearer ") {
		return Principal{}, ErrUnauthorized
	}
	return v.Verify(strings.TrimSpace(authz[7:]))
}

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == "dev" {
		// token format: subject:role
		parts := strings.Split(token, ":")
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return Principal{Subject: parts[0], Role: strings.ToLower(parts[1])}, nil
		}
		return Principal{}, errors.New("invalid dev token; expected subject:role")
	}
	if v.Mode != "hmac" {
		return Principal{}, errors.New("unsupported auth mode")
	}
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, errors.New("invalid JWT")
	}
	headerJSON, err := b64urlDecode(segs[0])
	if err != nil {
		return Principal{}, err
	}
	payloadJSON, err := b64urlDecode(segs[1])
	if err != nil {
		return Principal{}, err
	}
	sig, err := b64urlDecode(segs[2])
	if err != nil {
		return Principal{}, err
	}
	var hdr struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return Principal{}, err
	}
	if hdr.Alg != "HS256" {
		return Principal{}, errors.New("unsupported alg for hmac")
	}
	mac := hmac.New(sha256.New, v.HMACSecret)
	mac.Write([]byte(segs[0] + "." + segs[1]))
	if !hmac.Equal(mac.Sum(nil), sig) {
		return Principal{}, errors.New("bad signature")
	}
	var claims map[string]any
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return Principal{}, err
	}
	if exp, ok := claims["exp"].(float64); ok && v.now().Unix() >= int64(exp) {
		return Principal{}, errors.New("token expired")
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims[v.RoleClaim].(string)
	if role == "" {
		return Principal{}, errors.New("missing role claim")
	}
	return Principal{Subject: sub, Role: strings.ToLower(role)}, nil
}

// SignHS256 issues a token for the given claims. Used by tooling and tests.
func SignHS256(secret string, claims map[string]any) (string, error) {
	hdr, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	body, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	input := b64urlEncode(hdr) + "." + b64urlEncode(body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(input))
	return input + "." + b64urlEncode(mac.Sum(nil)), nil
}

func b64urlDecode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }

func b64urlEncode(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }
