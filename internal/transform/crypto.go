package transform

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"hash"
	"unicode/utf8"

	"go.uber.org/zap"

	"flowload/internal/core"
	"flowload/internal/log"
	"flowload/internal/template"
)

const defaultHMACKey = "default_key"

func sha256Transform(input any, _ Config, _ core.Context) (any, error) {
	sum := sha256.Sum256([]byte(template.Stringify(input)))
	return hex.EncodeToString(sum[:]), nil
}

// hmacTransform signs the input with config.key. config.algorithm is sha256
// (default), sha1 or md5; anything else falls back to sha256.
func hmacTransform(input any, cfg Config, _ core.Context) (any, error) {
	var fn func() hash.Hash
	switch cfg.String("algorithm", "sha256") {
	case "sha1":
		fn = sha1.New
	case "md5":
		fn = md5.New
	default:
		fn = sha256.New
	}
	mac := hmac.New(fn, []byte(cfg.String("key", defaultHMACKey)))
	mac.Write([]byte(template.Stringify(input)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func base64Encode(input any, _ Config, _ core.Context) (any, error) {
	return base64.StdEncoding.EncodeToString([]byte(template.Stringify(input))), nil
}

func base64Decode(input any, _ Config, _ core.Context) (any, error) {
	b, err := base64.StdEncoding.DecodeString(template.Stringify(input))
	if err != nil {
		return nil, fmt.Errorf("decoding base64: %w", err)
	}
	if !utf8.Valid(b) {
		return nil, errors.New("decoded value is not valid UTF-8")
	}
	return string(b), nil
}

// rsaEncrypt encrypts the input with PKCS#1 v1.5 under config.public_key, or
// the context variable rsa_public_key, and returns base64 ciphertext. Without
// a usable key, or when the input is longer than the key allows, it returns
// the input base64 encoded instead.
func rsaEncrypt(input any, cfg Config, ctx core.Context) (any, error) {
	plain := []byte(template.Stringify(input))
	fallback := base64.StdEncoding.EncodeToString(plain)

	keyPEM := cfg.String("public_key", "")
	if keyPEM == "" {
		keyPEM = template.Stringify(ctx["rsa_public_key"])
	}
	if keyPEM == "" {
		log.L().Warn("no RSA public key configured, using base64 encoding")
		return fallback, nil
	}

	pub, err := parsePublicKey(keyPEM)
	if err != nil {
		log.L().Error("RSA encryption failed, using base64 encoding", zap.Error(err))
		return fallback, nil
	}
	if limit := pub.Size() - 11; len(plain) > limit {
		log.L().Error("RSA encryption failed, using base64 encoding",
			zap.Error(fmt.Errorf("data too long for RSA encryption: %d > %d", len(plain), limit)))
		return fallback, nil
	}

	out, err := rsa.EncryptPKCS1v15(rand.Reader, pub, plain)
	if err != nil {
		log.L().Error("RSA encryption failed, using base64 encoding", zap.Error(err))
		return fallback, nil
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// parsePublicKey accepts a PEM encoded PKIX or PKCS#1 RSA public key.
func parsePublicKey(s string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, errors.New("no PEM block found in public key")
	}
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key is %T, not RSA", key)
		}
		return pub, nil
	}
	pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	return pub, nil
}
