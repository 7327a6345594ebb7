// Package auth issues and checks the short-lived tokens that admit a caller
// to a session's audio websocket.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenFormat = errors.New("invalid token format")
	ErrTokenSig    = errors.New("invalid token signature")
	ErrTokenExp    = errors.New("token expired")
	ErrTokenSID    = errors.New("session id mismatch")
	ErrNoSecret    = errors.New("token secret is empty")
)

// Claims are the values bound into an audio token.
type Claims struct {
	SessionID string
	UserID    string
	Exp       int64
}

// GenerateAudioToken builds a token for one session and caller.
// Format: base64url(session_id "." base64url(user_id) "." exp_unix "." hex(hmac_sha256(secret, first three fields)))
func GenerateAudioToken(secret, sessionID, userID string, expUnix int64) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	if sessionID == "" || strings.Contains(sessionID, ".") {
		return "", ErrTokenFormat
	}
	msg := sessionID + "." + base64.RawURLEncoding.EncodeToString([]byte(userID)) + "." + strconv.FormatInt(expUnix, 10)
	raw := msg + "." + sign(secret, msg)
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

// ValidateAudioToken parses and checks the token. expectSessionID may be
// empty to accept any session; skew extends the expiry.
func ValidateAudioToken(secret, token, expectSessionID string, now time.Time, skew time.Duration) (Claims, error) {
	if secret == "" {
		return Claims{}, ErrNoSecret
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Claims{}, ErrTokenFormat
	}
	parts := strings.Split(string(b), ".")
	if len(parts) != 4 {
		return Claims{}, ErrTokenFormat
	}
	sid, userEnc, expStr, sigHex := parts[0], parts[1], parts[2], parts[3]
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return Claims{}, ErrTokenFormat
	}
	user, err := base64.RawURLEncoding.DecodeString(userEnc)
	if err != nil {
		return Claims{}, ErrTokenFormat
	}
	if expectSessionID != "" && sid != expectSessionID {
		return Claims{}, ErrTokenSID
	}
	want, _ := hex.DecodeString(sign(secret, sid+"."+userEnc+"."+expStr))
	got, err := hex.DecodeString(sigHex)
	if err != nil {
		return Claims{}, ErrTokenFormat
	}
	if !hmac.Equal(want, got) {
		return Claims{}, ErrTokenSig
	}
	if now.Unix() > exp+int64(skew/time.Second) {
		return Claims{}, ErrTokenExp
	}
	return Claims{SessionID: sid, UserID: string(user), Exp: exp}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func sign(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}
