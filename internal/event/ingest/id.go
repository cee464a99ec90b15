package ingest

import (
	"crypto/rand"
	"math/big"
)

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewEventID returns a random id shaped {XXXX-XXXXXXXX-XXXXXXXX}.
func NewEventID() (string, error) {
	buf := make([]byte, 0, 24)
	buf = append(buf, '{')
	for i, n := range []int{4, 8, 8} {
		if i > 0 {
			buf = append(buf, '-')
		}
		for j := 0; j < n; j++ {
			k, err := rand.Int(rand.Reader, big.NewInt(int64(len(idAlphabet))))
			if err != nil {
				return "", err
			}
			buf = append(buf, idAlphabet[k.Int64()])
		}
	}
	return string(append(buf, '}')), nil
}
