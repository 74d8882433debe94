package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TokenTTL is how long an anti-forgery token stays valid.
const TokenTTL = 12 * time.Hour

var errBadToken = errors.New("invalid anti-forgery token")

// issueToken mints a token bound to the caller's session key. The token is
// its own proof: HMAC(secret, sessionKey|expiry) plus the expiry, so no
// server-side state is needed to verify it.
func issueToken(secret []byte, sessionKey string, now time.Time) string {
	expiry := now.Add(TokenTTL).Unix()
	return tokenMAC(secret, sessionKey, expiry) + "." + strconv.FormatInt(expiry, 10)
}

// verifyToken checks the token's MAC and expiry against the presenting
// session.
func verifyToken(secret []byte, sessionKey, token string, now time.Time) error {
	dot := strings.LastIndex(token, ".")
	if dot < 0 {
		return errBadToken
	}
	expiry, err := strconv.ParseInt(token[dot+1:], 10, 64)
	if err != nil {
		return errBadToken
	}
	if now.Unix() > expiry {
		return fmt.Errorf("%w: expired", errBadToken)
	}
	expected := tokenMAC(secret, sessionKey, expiry)
	if !hmac.Equal([]byte(expected), []byte(token[:dot])) {
		return errBadToken
	}
	return nil
}

func tokenMAC(secret []byte, sessionKey string, expiry int64) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(sessionKey))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(expiry, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
