package paymentprovider

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign_SortsKeys(t *testing.T) {
	body := []byte(`{"payment_status":"finished","payment_id":5077125051,"fee":{"currency":"btc","depositFee":0.00001},"order_id":"a<b"}`)
	canonical := `{"fee":{"currency":"btc","depositFee":0.00001},"order_id":"a<b","payment_id":5077125051,"payment_status":"finished"}`

	mac := hmac.New(sha512.New, []byte("secret"))
	mac.Write([]byte(canonical))
	want := hex.EncodeToString(mac.Sum(nil))

	got, err := Sign(body, "secret")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestVerifyIPN(t *testing.T) {
	body := []byte(`{"payment_id":5077125051,"payment_status":"finished","order_id":"11111111-1111-4111-8111-111111111111"}`)
	sig, err := Sign(body, "secret")
	require.NoError(t, err)

	tests := []struct {
		name      string
		signature string
		secret    string
		wantErr   bool
	}{
		{name: "valid", signature: sig, secret: "secret"},
		{name: "valid upper case", signature: strings.ToUpper(sig), secret: "secret"},
		{name: "wrong secret", signature: sig, secret: "other", wantErr: true},
		{name: "missing signature", signature: "", secret: "secret", wantErr: true},
		{name: "secret not configured", signature: sig, secret: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ipn, err := VerifyIPN(body, tt.signature, tt.secret)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSignature)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "5077125051", ipn.PaymentID.String())
			assert.Equal(t, "finished", ipn.PaymentStatus)
		})
	}
}

func TestVerifyIPN_MalformedBody(t *testing.T) {
	_, err := VerifyIPN([]byte(`{`), "abc", "secret")
	assert.Error(t, err)
}
