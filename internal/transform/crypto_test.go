package transform

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowload/internal/core"
)

func TestSHA256(t *testing.T) {
	out, err := NewRegistry().Execute("sha256", "hello", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", out)
}

func TestHMAC(t *testing.T) {
	r := NewRegistry()

	out, err := r.Execute("hmac", "The quick brown fox jumps over the lazy dog", map[string]any{"key": "key"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", out)

	out, err = r.Execute("hmac", "The quick brown fox jumps over the lazy dog", map[string]any{"key": "key", "algorithm": "md5"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "80070713463e7749b90c2dc24911e275", out)

	out, err = r.Execute("hmac", "The quick brown fox jumps over the lazy dog", map[string]any{"key": "key", "algorithm": "sha1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "de7c9b85b8b78aa6bc8a7a36f70a90701c9db4d9", out)

	def, err := r.Execute("hmac", "x", nil, nil)
	require.NoError(t, err)
	explicit, err := r.Execute("hmac", "x", map[string]any{"key": "default_key", "algorithm": "whirlpool"}, nil)
	require.NoError(t, err)
	assert.Equal(t, def, explicit)
}

func TestBase64(t *testing.T) {
	r := NewRegistry()

	enc, err := r.Execute("base64_encode", "hello world", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8gd29ybGQ=", enc)

	dec, err := r.Execute("base64_decode", enc, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", dec)

	_, err = r.Execute("base64_decode", "not base64!", nil, nil)
	assert.Error(t, err)

	_, err = r.Execute("base64_decode", base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe}), nil, nil)
	assert.Error(t, err)
}

func generateKey(t *testing.T) (*rsa.PrivateKey, string, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	pkix, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pkixPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pkix})

	pkcs1PEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&priv.PublicKey)})
	return priv, string(pkixPEM), string(pkcs1PEM)
}

func TestRSAEncrypt_RoundTrip(t *testing.T) {
	priv, pkix, pkcs1 := generateKey(t)
	r := NewRegistry()

	for name, key := range map[string]string{"pkix": pkix, "pkcs1": pkcs1} {
		t.Run(name, func(t *testing.T) {
			out, err := r.Execute("rsa_encrypt", "secret-pin", map[string]any{"public_key": key}, nil)
			require.NoError(t, err)

			cipher, err := base64.StdEncoding.DecodeString(out.(string))
			require.NoError(t, err)
			plain, err := rsa.DecryptPKCS1v15(rand.Reader, priv, cipher)
			require.NoError(t, err)
			assert.Equal(t, "secret-pin", string(plain))
		})
	}
}

func TestRSAEncrypt_KeyFromContext(t *testing.T) {
	priv, pkix, _ := generateKey(t)
	ctx := core.Context{"rsa_public_key": pkix}

	out, err := NewRegistry().Execute("rsa_encrypt", "1234", nil, ctx)
	require.NoError(t, err)

	cipher, err := base64.StdEncoding.DecodeString(out.(string))
	require.NoError(t, err)
	plain, err := rsa.DecryptPKCS1v15(rand.Reader, priv, cipher)
	require.NoError(t, err)
	assert.Equal(t, "1234", string(plain))
}

func TestRSAEncrypt_FallsBackToBase64(t *testing.T) {
	_, pkix, _ := generateKey(t)
	r := NewRegistry()
	tooLong := strings.Repeat("x", 200)

	tests := []struct {
		name  string
		input string
		cfg   map[string]any
	}{
		{"no key", "abc", nil},
		{"bad pem", "abc", map[string]any{"public_key": "not a key"}},
		{"too long", tooLong, map[string]any{"public_key": pkix}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Execute("rsa_encrypt", tt.input, tt.cfg, nil)
			require.NoError(t, err)
			assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(tt.input)), out)
		})
	}
}
