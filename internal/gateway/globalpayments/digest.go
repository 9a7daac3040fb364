package globalpayments

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidKey = errors.New("invalid RSA key")

// responseFields порядок полей ответа в подписи DIGEST; отсутствующие пропускаются.
var responseFields = []string{
	"OPERATION", "ORDERNUMBER", "MERORDERNUM", "MD", "PRCODE", "SRCODE", "RESULTTEXT",
	"USERPARAM1", "ADDINFO", "TOKEN", "EXPIRY", "ACSRES", "ACCODE", "PANPATTERN",
	"DAYTOCAPTURE", "TOKENREGSTATUS", "ACRC", "RRN", "PAR", "TRACEID",
}

// requestFields порядок полей запроса CREATE_ORDER в подписи.
var requestFields = []string{
	"MERCHANTNUMBER", "OPERATION", "ORDERNUMBER", "AMOUNT", "CURRENCY", "DEPOSITFLAG",
	"MERORDERNUM", "URL", "DESCRIPTION", "REFERENCENUMBER",
}

func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidKey)
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	rk, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidKey)
	}
	return rk, nil
}

func ParsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidKey)
	}
	if k, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if rk, ok := k.(*rsa.PublicKey); ok {
			return rk, nil
		}
		return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidKey)
	}
	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		if rk, ok := cert.PublicKey.(*rsa.PublicKey); ok {
			return rk, nil
		}
	}
	k, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return k, nil
}

// Sign SHA1 + PKCS#1 v1.5, base64.
func Sign(key *rsa.PrivateKey, data string) (string, error) {
	sum := sha1.Sum([]byte(data))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA1, sum[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func Verify(key *rsa.PublicKey, data, signature string) bool {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || key == nil {
		return false
	}
	sum := sha1.Sum([]byte(data))
	return rsa.VerifyPKCS1v15(key, crypto.SHA1, sum[:], sig) == nil
}

// RequestDigestInput поля запроса через "|", пустые значения сохраняются.
func RequestDigestInput(params map[string]string) string {
	parts := make([]string, 0, len(requestFields))
	for _, f := range requestFields {
		parts = append(parts, params[f])
	}
	return strings.Join(parts, "|")
}

// ResponseDigestInput вход для DIGEST; DIGEST1 тот же вход плюс "|MERCHANTNUMBER".
func ResponseDigestInput(params url.Values) string {
	parts := make([]string, 0, len(responseFields))
	for _, f := range responseFields {
		if _, ok := params[f]; !ok {
			continue
		}
		parts = append(parts, params.Get(f))
	}
	return strings.Join(parts, "|")
}

// VerifyResponse обе подписи должны сойтись.
func VerifyResponse(key *rsa.PublicKey, params url.Values, merchantNumber string) bool {
	data := ResponseDigestInput(params)
	if !Verify(key, data, params.Get("DIGEST")) {
		return false
	}
	return Verify(key, data+"|"+merchantNumber, params.Get("DIGEST1"))
}
