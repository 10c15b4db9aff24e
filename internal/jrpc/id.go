package jrpc

import (
	"math/big"

	"github.com/google/uuid"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var base = big.NewInt(int64(len(alphabet)))

// uniqueID renders a random UUID in base 62
func uniqueID() string {
	u := uuid.New()
	n := new(big.Int).SetBytes(u[:])
	if n.Sign() == 0 {
		return "0"
	}

	var out []byte
	mod := new(big.Int)
	for n.Sign() > 0 {
		n.DivMod(n, base, mod)
		out = append(out, alphabet[mod.Int64()])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
