// package session owns the bearer token and the navigation-history gating around sign-in
package session

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the authentication state of the client.
//
// An empty Token means signed out. SignInHistoryIndex and JustSignedIn are written on sign-in;
// the first navigation afterwards clears JustSignedIn. Sign-out leaves both untouched.
type Session struct {
	Token              string
	SignInHistoryIndex int
	JustSignedIn       bool
}

// SignedIn reports whether a token is present.
func (s Session) SignedIn() bool {
	return s.Token != ""
}

// CanGoBack reports whether navigating back from position is allowed.
func (s Session) CanGoBack(position int) bool {
	return position > s.SignInHistoryIndex
}

// CanGoForward reports whether forward navigation is allowed.
func (s Session) CanGoForward() bool {
	return !s.JustSignedIn
}

// UserID returns the subject of the token, or "" when the token is absent or not a JWT.
//
// The signature is not verified: the value only picks the realtime channel and the server
// authorizes the subscription itself.
func (s Session) UserID() string {
	return UserIDFromToken(s.Token)
}

// UserIDFromToken extracts the "sub" claim of an unverified JWT.
func UserIDFromToken(token string) string {
	if strings.Count(token, ".") != 2 {
		return ""
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

// Event is a session transition.
type Event interface {
	apply(Session) Session
}

// SignedIn stores a new token and starts history gating at HistoryIndex.
type SignedIn struct {
	Token        string
	HistoryIndex int
}

func (e SignedIn) apply(Session) Session {
	return Session{Token: e.Token, SignInHistoryIndex: e.HistoryIndex, JustSignedIn: true}
}

// TokenRefreshed replaces the token after a successful refresh.
type TokenRefreshed struct {
	Token string
}

func (e TokenRefreshed) apply(s Session) Session {
	s.Token = e.Token
	return s
}

// SignedOut clears the token.
type SignedOut struct{}

func (SignedOut) apply(s Session) Session {
	s.Token = ""
	return s
}

// Navigated is any history navigation. It lifts the forward-navigation block.
type Navigated struct{}

func (Navigated) apply(s Session) Session {
	s.JustSignedIn = false
	return s
}

// Apply returns the session that results from e.
func Apply(s Session, e Event) Session {
	if e == nil {
		return s
	}
	return e.apply(s)
}
