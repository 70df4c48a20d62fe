package auth

import "crypto/subtle"

// CheckLocal validates local credentials in constant time. When an
// argon2id hash is configured it takes precedence over the plaintext
// password.
func CheckLocal(user, pass, wantUser, wantPass, wantHash string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(wantUser)) == 1

	if wantHash != "" {
		ok, err := CheckPassword(pass, wantHash)
		return userOK && err == nil && ok
	}

	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(wantPass)) == 1
	return userOK && passOK
}
