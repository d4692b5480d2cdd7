package domain

import "time"

// Session is the cached record behind an opaque session id. The access token is
// an opaque bearer string issued by the identity provider; AccessExp mirrors its
// exp claim (unix seconds) so expiry checks never re-parse the token.
type Session struct {
	UserID      string `json:"userId"`
	AccessToken string `json:"accessToken"`
	AccessExp   int64  `json:"accessExp"`
}

// ExpiresAt returns the access token expiry as a time.
func (s Session) ExpiresAt() time.Time {
	return time.Unix(s.AccessExp, 0)
}
