package session

import "authgate/cmd/security/token"

func newOpaqueRefreshToken(nBytes int) (plain string, hashHex string, err error) {
	return token.NewOpaqueWithHash(nBytes)
}

func hashSecret(s string) string {
	return token.HashSecretHex(s)
}
