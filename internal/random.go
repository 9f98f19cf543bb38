package internal

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// NewNumericCode returns a uniformly random code of the given width drawn
// from crypto/rand, zero-padded on the left.
func NewNumericCode(digits int) (string, error) {
	return newNumericCode(rand.Reader, digits)
}

func newNumericCode(src io.Reader, digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid code digits")
	}

	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(src, limit)
	if err != nil {
		return "", err
	}

	code := n.String()
	if len(code) < digits {
		code = strings.Repeat("0", digits-len(code)) + code
	}
	if len(code) != digits {
		return "", fmt.Errorf("invalid code generation length")
	}
	return code, nil
}

// NewRecordID returns an opaque, unique verification record identifier.
func NewRecordID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
