package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medianest/gateway/internal/core"
	"github.com/medianest/gateway/internal/store"
)

type fakeUserStore struct {
	users map[int64]*store.User
}

func (f *fakeUserStore) FindByID(_ context.Context, id int64) (*store.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func testJWTConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "medianest",
		Audience: "medianest-gateway",
		TTL:      time.Hour,
	}
}

func newTestVerifier(users map[int64]*store.User) *Verifier {
	return NewVerifier(&fakeUserStore{users: users}, testJWTConfig())
}

func TestVerifyResolvesIdentity(t *testing.T) {
	v := newTestVerifier(map[int64]*store.User{
		1: {ID: 1, Username: "alice", Email: "alice@example.com", IsAdmin: true, IsActive: true},
		2: {ID: 2, Username: "bob", IsActive: true},
	})

	token, err := GenerateToken(testJWTConfig(), 1)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	identity, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.UserID != 1 || identity.Role != core.RoleAdmin || identity.Email != "alice@example.com" {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	token, _ = GenerateToken(testJWTConfig(), 2)
	identity, err = v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.Role != core.RoleUser {
		t.Fatalf("non-admin user resolved to role %q", identity.Role)
	}
}

func TestVerifyUnauthenticated(t *testing.T) {
	v := newTestVerifier(map[int64]*store.User{
		1: {ID: 1, Username: "alice", IsActive: true},
	})

	expired := testJWTConfig()
	expired.TTL = -time.Hour
	expiredToken, _ := GenerateToken(expired, 1)

	wrongKey := testJWTConfig()
	wrongKey.Secret = []byte("some-other-secret")
	forgedToken, _ := GenerateToken(wrongKey, 1)

	wrongAlg := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1})
	noneToken, _ := wrongAlg.SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, credential := range map[string]string{
		"absent":    "",
		"malformed": "not.a.jwt",
		"expired":   expiredToken,
		"forged":    forgedToken,
		"alg none":  noneToken,
	} {
		if _, err := v.Verify(context.Background(), credential); !errors.Is(err, core.ErrUnauthenticated) {
			t.Fatalf("%s credential: err = %v, want ErrUnauthenticated", name, err)
		}
	}
}

func TestVerifyIdentityRejected(t *testing.T) {
	v := newTestVerifier(map[int64]*store.User{
		3: {ID: 3, Username: "carol", IsActive: false},
	})

	unknown, _ := GenerateToken(testJWTConfig(), 99)
	if _, err := v.Verify(context.Background(), unknown); !errors.Is(err, core.ErrIdentityRejected) {
		t.Fatalf("unknown user: err = %v, want ErrIdentityRejected", err)
	}

	inactive, _ := GenerateToken(testJWTConfig(), 3)
	if _, err := v.Verify(context.Background(), inactive); !errors.Is(err, core.ErrIdentityRejected) {
		t.Fatalf("inactive user: err = %v, want ErrIdentityRejected", err)
	}
}

func TestVerifyIssuerAndAudience(t *testing.T) {
	v := newTestVerifier(map[int64]*store.User{
		1: {ID: 1, Username: "alice", IsActive: true},
	})

	badIssuer := testJWTConfig()
	badIssuer.Issuer = "someone-else"
	token, _ := GenerateToken(badIssuer, 1)
	if _, err := v.Verify(context.Background(), token); !errors.Is(err, core.ErrUnauthenticated) {
		t.Fatalf("wrong issuer: err = %v, want ErrUnauthenticated", err)
	}

	badAudience := testJWTConfig()
	badAudience.Audience = "other-service"
	token, _ = GenerateToken(badAudience, 1)
	if _, err := v.Verify(context.Background(), token); !errors.Is(err, core.ErrUnauthenticated) {
		t.Fatalf("wrong audience: err = %v, want ErrUnauthenticated", err)
	}
}

func TestServiceKeyRoundTrip(t *testing.T) {
	hash, err := HashServiceKey("super-secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := CompareServiceKey(hash, "super-secret"); err != nil {
		t.Fatalf("compare: %v", err)
	}
	if err := CompareServiceKey(hash, "wrong"); err == nil {
		t.Fatal("wrong key must not match")
	}
}
