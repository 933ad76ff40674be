package certificates

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

var idSpace = big.NewInt(1_000_000)

// NewIDFunc returns a generator of "<PREFIX>-NNNNNN" codes. The prefix is upper-cased to match
// the normalization Find applies. Uniqueness is enforced by the store.
func NewIDFunc(prefix string) func() (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	return func() (string, error) {
		n, err := rand.Int(rand.Reader, idSpace)
		if err != nil {
			return "", fmt.Errorf("generate certificate id: %w", err)
		}
		return fmt.Sprintf("%s-%06d", prefix, n.Int64()), nil
	}
}
