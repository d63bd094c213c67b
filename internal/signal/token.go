package signal

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// tokenClaims is the JWT payload of a signaling token.
type tokenClaims struct {
	Subject   string `json:"sub"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	MeetingID string `json:"mid"`
	ExpiresAt int64  `json:"exp"`
}

// HS256 issues and verifies signaling tokens as HMAC-SHA256 JWTs. The
// controller signs a token per participant (and per worker) at meeting
// start; the hub and the worker present it on every connection.
type HS256 struct {
	secret []byte
	now    func() time.Time
}

var _ TokenVerifier = (*HS256)(nil)

// NewHS256 creates a signer/verifier over the shared secret.
func NewHS256(secret string) *HS256 {
	return &HS256{secret: []byte(secret), now: time.Now}
}

var tokenHeader = base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))

// Sign issues a token admitting the claims into meetingID for ttl.
func (h *HS256) Sign(claims Claims, meetingID string, ttl time.Duration) (string, error) {
	if claims.UserID == "" || meetingID == "" {
		return "", fmt.Errorf("signal: %w: token requires a user and meeting", meet.ErrInvalidInput)
	}
	payload, err := json.Marshal(tokenClaims{
		Subject:   claims.UserID,
		Name:      claims.UserName,
		Role:      string(claims.Role),
		MeetingID: meetingID,
		ExpiresAt: h.now().Add(ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("signal: marshal claims: %w", err)
	}
	signingInput := tokenHeader + "." + base64.RawURLEncoding.EncodeToString(payload)
	return signingInput + "." + h.signature(signingInput), nil
}

// Verify implements TokenVerifier. It checks the signature, expiry, and
// that the token was issued for meetingID.
func (h *HS256) Verify(token, meetingID string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, fmt.Errorf("signal: %w: malformed token", meet.ErrPermissionDenied)
	}
	signingInput := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(h.signature(signingInput)), []byte(parts[2])) {
		return Claims{}, fmt.Errorf("signal: %w: bad token signature", meet.ErrPermissionDenied)
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, fmt.Errorf("signal: %w: undecodable token payload", meet.ErrPermissionDenied)
	}
	var tc tokenClaims
	if err := json.Unmarshal(payload, &tc); err != nil {
		return Claims{}, fmt.Errorf("signal: %w: unparseable token claims", meet.ErrPermissionDenied)
	}

	if tc.ExpiresAt != 0 && h.now().Unix() >= tc.ExpiresAt {
		return Claims{}, fmt.Errorf("signal: %w: token expired", meet.ErrPermissionDenied)
	}
	if tc.MeetingID != meetingID {
		return Claims{}, fmt.Errorf("signal: %w: token issued for another meeting", meet.ErrPermissionDenied)
	}
	if tc.Subject == "" {
		return Claims{}, fmt.Errorf("signal: %w: token has no subject", meet.ErrPermissionDenied)
	}

	role := meet.Role(tc.Role)
	if role != meet.RoleHost {
		role = meet.RoleParticipant
	}
	return Claims{UserID: tc.Subject, UserName: tc.Name, Role: role}, nil
}

func (h *HS256) signature(signingInput string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(signingInput))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
