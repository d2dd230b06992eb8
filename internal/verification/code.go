package verification

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	codeMin  = 100000
	codeSpan = 900000
)

var span = big.NewInt(codeSpan)

// GenerateCode returns a uniformly random six digit code in [100000, 999999].
func GenerateCode() string {
	for {
		n, err := rand.Int(rand.Reader, span)
		if err != nil {
			continue
		}
		return fmt.Sprintf("%06d", n.Int64()+codeMin)
	}
}
