package security

import "time"

// DefaultClockSkewGracePeriod tolerates small clock differences between the
// server and its storage backend when judging token expiry.
const DefaultClockSkewGracePeriod = 5 * time.Second

// IsTokenExpired checks expiry with the default clock-skew grace period.
func IsTokenExpired(expiresAt time.Time) bool {
	return IsTokenExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod)
}

// IsTokenExpiredWithGracePeriod reports whether a token is expired, treating
// tokens within gracePeriod of expiry as still valid.
func IsTokenExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	return time.Now().After(expiresAt.Add(gracePeriod))
}

// IsTokenExpiringSoon reports whether a token expires within the given
// window. Callers use this to refresh proactively.
func IsTokenExpiringSoon(expiresAt time.Time, window time.Duration) bool {
	return time.Now().Add(window).After(expiresAt)
}
