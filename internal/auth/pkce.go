package auth

import "golang.org/x/oauth2"

// PKCE はOAuth認可コードフローのPKCEパラメータ。
type PKCE struct {
	Verifier  string
	Challenge string
}

// NewPKCE はcode_verifierとS256のcode_challengeを生成する。
func NewPKCE() PKCE {
	verifier := oauth2.GenerateVerifier()
	return PKCE{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
	}
}
