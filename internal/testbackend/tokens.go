package testbackend

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aussiebroadwan/iotrac/pkg/cryptox"
)

// DefaultAccessTTL is the lifetime written into issued access tokens.
const DefaultAccessTTL = 15 * time.Minute

// accessClaims are the claims carried by access tokens. Refresh tokens stay
// opaque.
type accessClaims struct {
	jwt.RegisteredClaims

	// Authentication methods: "pwd", "otp", "mfa".
	AMR []string `json:"amr,omitempty"`
}

type signer struct {
	key ed25519.PrivateKey
	pub ed25519.PublicKey
}

func newSigner() signer {
	pub, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(fmt.Sprintf("testbackend: generate signing key: %v", err))
	}
	return signer{key: key, pub: pub}
}

// signAccess mints an EdDSA access token for user id.
func (b *Backend) signAccess(id int64, amr ...string) string {
	now := b.now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TOTPIssuer,
			Subject:   strconv.FormatInt(id, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(b.accessTTL)),
			ID:        cryptox.MustGenerateToken(cryptox.TokenSize128),
		},
		AMR: amr,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(b.signer.key)
	if err != nil {
		panic(fmt.Sprintf("testbackend: sign access token: %v", err))
	}
	return token
}

// verifyAccess checks the signature and lifetime of an access token.
func (b *Backend) verifyAccess(token string) error {
	_, err := jwt.ParseWithClaims(token, &accessClaims{},
		func(*jwt.Token) (any, error) { return b.signer.pub, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(TOTPIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(b.now),
	)
	return err
}
