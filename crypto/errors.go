package crypto

import "errors"

var ErrInvalidKeySize = errors.New("crypto: invalid key size")
