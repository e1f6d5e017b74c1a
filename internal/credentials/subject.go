package credentials

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// callerInfo is what the exchanger may learn about a caller token without
// verifying it. The identity provider validates the assertion itself.
type callerInfo struct {
	// key identifies exactly this token. Unverified claims must never
	// select a cache entry.
	key string

	// subject is a short hash of tid/oid or iss/sub, only for logs.
	subject string

	// expiry is the token's exp claim, zero when absent or opaque.
	expiry time.Time
}

func inspectCallerToken(token string) callerInfo {
	info := callerInfo{key: hashString(token)}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		info.subject = info.key[:12]
		return info
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.expiry = exp.Time
	}

	tid, _ := claims["tid"].(string)
	oid, _ := claims["oid"].(string)
	switch {
	case oid != "":
		info.subject = hashString(tid + "/" + oid)[:12]
	default:
		iss, _ := claims.GetIssuer()
		sub, _ := claims.GetSubject()
		if sub != "" {
			info.subject = hashString(iss + "/" + sub)[:12]
		} else {
			info.subject = info.key[:12]
		}
	}
	return info
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
