package ice

import (
	"github.com/pion/randutil"
)

// iceCharset is the 64-character ICE-safe alphabet from spec.md §3
// ("generated at stream creation from the RNG using the 64-character
// ICE-safe alphabet"), matching RFC 5245 §15.1's ice-char production.
const iceCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

const (
	ufragLength    = 22
	passwordLength = 22
)

// defaultRNG wraps pion/randutil as the RNG capability from spec.md §1/§6.
type defaultRNG struct {
	gen *randutil.MathRandomGenerator
}

func newDefaultRNG() *defaultRNG {
	return &defaultRNG{gen: &randutil.MathRandomGenerator{}}
}

func (r *defaultRNG) Bytes(n int) ([]byte, error) {
	s, err := r.gen.GenerateCryptoRandomString(n, iceCharset)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func validateUfrag(ufrag string) error {
	if len(ufrag) < 4 || len(ufrag) > 256 {
		return ErrInvalidUfrag
	}
	return nil
}

func validatePassword(pwd string) error {
	if len(pwd) < 22 || len(pwd) > 256 {
		return ErrInvalidPassword
	}
	return nil
}
