package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_secret_key_1234567890"

func TestMaker_RoundTrip(t *testing.T) {
	ttl := 15 * time.Minute
	maker := NewMaker(testSecret, ttl)

	tests := []struct {
		name    string
		userID  int64
		isAdmin bool
	}{
		{name: "admin", userID: 42, isAdmin: true},
		{name: "member", userID: 100500},
		{name: "id above 2^53", userID: 9007199254740993},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := maker.GenerateToken(tt.userID, tt.isAdmin)
			require.NoError(t, err)

			claims, err := maker.ParseToken(token)
			require.NoError(t, err)

			assert.Equal(t, tt.userID, claims.UserID)
			assert.Equal(t, tt.isAdmin, claims.IsAdmin)
			assert.Equal(t, Issuer, claims.Issuer)
			assert.Equal(t, subject(tt.userID), claims.Subject)
			assert.NotEmpty(t, claims.ID)
			assert.WithinDuration(t, time.Now().Add(ttl), claims.ExpiresAt.Time, 2*time.Second)
		})
	}
}

func TestMaker_TokensAreUnique(t *testing.T) {
	maker := NewMaker(testSecret, time.Minute)

	first, err := maker.GenerateToken(1, false)
	require.NoError(t, err)
	second, err := maker.GenerateToken(1, false)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestMaker_ParseToken_Rejects(t *testing.T) {
	maker := NewMaker(testSecret, 15*time.Minute)
	valid, err := maker.GenerateToken(1, false)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "empty", token: ""},
		{name: "malformed", token: "invalid.token.here"},
		{name: "tampered", token: valid + "x"},
		{name: "expired", token: mustGenerate(t, NewMaker(testSecret, -time.Hour), 1), wantErr: jwt.ErrTokenExpired},
		{name: "other secret", token: mustGenerate(t, NewMaker("other_secret", time.Hour), 1), wantErr: jwt.ErrTokenSignatureInvalid},
		{name: "none algorithm", token: sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, validClaims(1, Issuer))},
		{name: "foreign issuer", token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(1, "someone-else")), wantErr: jwt.ErrTokenInvalidIssuer},
		{name: "no user", token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(0, Issuer)), wantErr: ErrNoUser},
		{name: "subject mismatch", token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), func() Claims {
			c := validClaims(1, Issuer)
			c.Subject = "2"
			return c
		}()), wantErr: ErrNoUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := maker.ParseToken(tt.token)
			require.Error(t, err)
			assert.Nil(t, claims)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func mustGenerate(t *testing.T, m *Maker, userID int64) string {
	t.Helper()
	token, err := m.GenerateToken(userID, false)
	require.NoError(t, err)
	return token
}

func validClaims(userID int64, issuer string) Claims {
	return Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject(userID),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}
