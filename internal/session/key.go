// Package session holds the server-side preference mirror: per-visitor
// consent records keyed by a salted pseudo-session hash, expiring after the
// configured TTL. Two backends are provided (in-memory and Redis) behind a
// config-driven factory.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"
)

// Key derives the pseudo-session identifier from connection metadata and the
// server secret. This is a heuristic identity, not a real session: two
// browsers sharing an IP and User-Agent (a NAT, a proxy, default UA strings)
// collide and share one preference record. That is an accepted property, not
// a bug to fix here.
//
// remoteAddr may carry a port ("203.0.113.7:51442"); it is stripped so the
// key survives connection churn.
func Key(remoteAddr, userAgent, secret string) string {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.TrimSpace(host)))
	mac.Write([]byte{0})
	mac.Write([]byte(strings.TrimSpace(userAgent)))
	return hex.EncodeToString(mac.Sum(nil))
}
