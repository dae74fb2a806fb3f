package obkv

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// authSession derives the login challenge a connection pool sends when
// it establishes a new authenticated session to a backend (spec.md
// §4.2 "long-lived authenticated session"). OBKV's proxy login
// handshake salts and hashes the password before it ever reaches the
// wire, the same role golang.org/x/crypto plays in the teacher's SCRAM
// SASL mechanisms.
type authSession struct {
	tenant   string
	user     string
	database string
	password string
}

const (
	scryptN = 1 << 14
	scryptR = 8
	scryptP = 1
	keyLen  = 32
)

// challenge derives the salted key a login request carries in place of
// the plaintext password.
func (s authSession) challenge() ([]byte, []byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("obkv: generating login salt: %w", err)
	}
	key, err := scrypt.Key([]byte(s.password), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, nil, fmt.Errorf("obkv: deriving login key: %w", err)
	}
	return key, salt, nil
}

// principal is the fully-qualified login identity sent alongside the
// derived key: user@tenant, scoped to database.
func (s authSession) principal() string {
	return fmt.Sprintf("%s@%s#%s", s.user, s.tenant, s.database)
}
