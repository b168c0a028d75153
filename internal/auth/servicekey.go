package auth

import "golang.org/x/crypto/bcrypt"

// HashServiceKey hashes an ingress service key for storage in config.
func HashServiceKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CompareServiceKey checks a presented service key against the
// configured bcrypt hash.
func CompareServiceKey(hash, key string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
}
