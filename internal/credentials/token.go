package credentials

import (
	"fmt"
	"time"
)

// DelegatedToken is an access token issued for a single downstream resource.
// Values are immutable once published to the cache.
type DelegatedToken struct {
	Resource string
	Token    string
	Expiry   time.Time
}

// Valid reports whether the token is usable at now, treating it as expired
// skew before its real expiry. A token without expiry is valid; such tokens
// are never cached, so they only live as long as the request that got them.
func (t *DelegatedToken) Valid(now time.Time, skew time.Duration) bool {
	if t == nil || t.Token == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return now.Add(skew).Before(t.Expiry)
}

// String never includes the token value.
func (t DelegatedToken) String() string {
	return fmt.Sprintf("DelegatedToken{resource=%s expiry=%s}", t.Resource, t.Expiry.Format(time.RFC3339))
}
