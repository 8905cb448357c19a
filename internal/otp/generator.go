package otp

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"strings"
)

// CodeDigits is the length of every issued code.
const CodeDigits = 6

// CodeGenerator produces fresh one-time codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// RandomCodes draws each digit independently and uniformly from crypto/rand,
// so leading zeros are as likely as any other digit.
type RandomCodes struct {
	// Reader defaults to crypto/rand.Reader.
	Reader io.Reader
}

// NewRandomCodes returns the production code generator.
func NewRandomCodes() RandomCodes {
	return RandomCodes{Reader: rand.Reader}
}

func (g RandomCodes) Generate() (string, error) {
	r := g.Reader
	if r == nil {
		r = rand.Reader
	}

	var b strings.Builder
	b.Grow(CodeDigits)

	ten := big.NewInt(10)
	for i := 0; i < CodeDigits; i++ {
		n, err := rand.Int(r, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	code := b.String()
	if len(code) != CodeDigits {
		return "", errors.New("otp: invalid code length")
	}
	return code, nil
}
