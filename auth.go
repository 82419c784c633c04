package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"goalrush/matchcore/internal/auth"
)

// identity is the authenticated outcome of a connection handshake. MatchID is
// empty when the token does not pin the player to a specific match.
type identity struct {
	PlayerID string
	MatchID  string
}

type websocketAuthenticator interface {
	Authenticate(r *http.Request) (identity, error)
}

// allowAllAuthenticator trusts the query parameters, for development rigs
// where no auth secret is configured.
type allowAllAuthenticator struct{}

func (allowAllAuthenticator) Authenticate(r *http.Request) (identity, error) {
	playerID := strings.TrimSpace(r.URL.Query().Get("player_id"))
	if playerID == "" {
		return identity{}, errors.New("player_id query parameter required")
	}
	return identity{
		PlayerID: playerID,
		MatchID:  strings.TrimSpace(r.URL.Query().Get("match_id")),
	}, nil
}

type hmacWebsocketAuthenticator struct {
	verifier *auth.HMACTokenVerifier
}

func newHMACWebsocketAuthenticator(secret string) (websocketAuthenticator, error) {
	verifier, err := auth.NewHMACTokenVerifier(secret, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &hmacWebsocketAuthenticator{verifier: verifier}, nil
}

// Authenticate validates the incoming token and returns the player identity.
func (a *hmacWebsocketAuthenticator) Authenticate(r *http.Request) (identity, error) {
	if a == nil || a.verifier == nil {
		return identity{}, errors.New("verifier not configured")
	}
	token := strings.TrimSpace(r.URL.Query().Get("auth_token"))
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Auth-Token"))
	}
	if token == "" {
		return identity{}, errors.New("missing auth token")
	}
	claims, err := a.verifier.Verify(token)
	if err != nil {
		return identity{}, err
	}
	return identity{PlayerID: claims.PlayerID, MatchID: claims.MatchID}, nil
}
