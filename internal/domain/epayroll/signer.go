package epayroll

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pkcs12"
)

const (
	AlgorithmRSASHA256   = "RSA-SHA256"
	AlgorithmECDSASHA256 = "ECDSA-SHA256"
	AlgorithmEd25519     = "Ed25519"

	KeyFormatPEM    = "pem"
	KeyFormatPKCS12 = "pkcs12"
)

// KeyMaterial is a private key as supplied by a caller: PEM text, or a
// base64 PKCS#12 bundle unlocked by Password.
type KeyMaterial struct {
	PrivateKey string `json:"privateKey"`
	Password   string `json:"password,omitempty"`
}

func (k KeyMaterial) Empty() bool {
	return strings.TrimSpace(k.PrivateKey) == ""
}

func (k KeyMaterial) Format() string {
	if strings.Contains(k.PrivateKey, "-----BEGIN") {
		return KeyFormatPEM
	}
	return KeyFormatPKCS12
}

// ParseSigningKey decodes key material into a signer.
func ParseSigningKey(km KeyMaterial) (crypto.Signer, error) {
	if km.Empty() {
		return nil, fmt.Errorf("%w: private key is required", ErrSigning)
	}
	var key any
	var err error
	if km.Format() == KeyFormatPEM {
		key, err = parsePEMKey([]byte(km.PrivateKey))
	} else {
		key, err = parsePKCS12Key(km.PrivateKey, km.Password)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported key type %T", ErrSigning, key)
	}
	if _, err := algorithmFor(signer.Public()); err != nil {
		return nil, err
	}
	return signer, nil
}

func parsePEMKey(data []byte) (any, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		return x509.ParsePKCS8PrivateKey(block.Bytes)
	case "ENCRYPTED PRIVATE KEY":
		return nil, errors.New("encrypted PEM keys are not supported; supply a PKCS#12 bundle instead")
	}
	return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
}

func parsePKCS12Key(encoded, password string) (any, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(encoded), ""))
	if err != nil {
		return nil, fmt.Errorf("key is neither PEM nor base64 PKCS#12: %v", err)
	}
	key, _, err := pkcs12.Decode(raw, password)
	if err != nil {
		return nil, fmt.Errorf("decode PKCS#12: %v", err)
	}
	return key, nil
}

func algorithmFor(pub crypto.PublicKey) (string, error) {
	switch pub.(type) {
	case *rsa.PublicKey:
		return AlgorithmRSASHA256, nil
	case *ecdsa.PublicKey:
		return AlgorithmECDSASHA256, nil
	case ed25519.PublicKey:
		return AlgorithmEd25519, nil
	}
	return "", fmt.Errorf("%w: unsupported public key type %T", ErrSigning, pub)
}

// Canonicalize normalizes line endings and trims surrounding whitespace so
// the signed bytes do not depend on how the XML was stored.
func Canonicalize(content string) []byte {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return []byte(strings.TrimSpace(content))
}

// SignContent signs the canonical form of content and returns the base64
// signature with its algorithm name.
func SignContent(content string, km KeyMaterial) (string, string, error) {
	signer, err := ParseSigningKey(km)
	if err != nil {
		return "", "", err
	}
	algorithm, err := algorithmFor(signer.Public())
	if err != nil {
		return "", "", err
	}
	msg := Canonicalize(content)

	var sig []byte
	switch algorithm {
	case AlgorithmEd25519:
		sig, err = signer.Sign(rand.Reader, msg, crypto.Hash(0))
	default:
		digest := sha256.Sum256(msg)
		sig, err = signer.Sign(rand.Reader, digest[:], crypto.SHA256)
	}
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return base64.StdEncoding.EncodeToString(sig), algorithm, nil
}

// Verify checks a base64 signature produced by SignContent.
func Verify(content, signature string, pub crypto.PublicKey) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not base64: %v", ErrSigning, err)
	}
	msg := Canonicalize(content)
	digest := sha256.Sum256(msg)
	switch key := pub.(type) {
	case *rsa.PublicKey:
		err = rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig)
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(key, digest[:], sig) {
			err = errors.New("ecdsa verification failed")
		}
	case ed25519.PublicKey:
		if !ed25519.Verify(key, msg, sig) {
			err = errors.New("ed25519 verification failed")
		}
	default:
		err = fmt.Errorf("unsupported public key type %T", pub)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return nil
}
