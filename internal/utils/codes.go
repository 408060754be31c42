package utils

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"strconv"
)

const (
	codeMin = 1000
	codeMax = 9999
)

// NewVerificationCode returns a 4-digit code drawn uniformly from 1000..9999.
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

// NewOpaqueToken returns nBytes of randomness hex-encoded.
func NewOpaqueToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 32 // 256 бит по умолчанию
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
