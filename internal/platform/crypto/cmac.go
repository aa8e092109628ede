package crypto

import (
	"crypto/aes"
	"crypto/subtle"
	"fmt"
)

const cmacBlockSize = 16

// CMAC computes the AES-CMAC (RFC 4493) of msg under the given AES key.
// The result is a 16-byte deterministic tag: the same key and message always
// produce the same tag, which is what makes it usable as a pseudonymous index.
func CMAC(key, msg []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cmac: %w", err)
	}

	k1, k2 := cmacSubkeys(block.Encrypt)

	n := (len(msg) + cmacBlockSize - 1) / cmacBlockSize
	var lastComplete bool
	if n == 0 {
		n = 1
		lastComplete = false
	} else {
		lastComplete = len(msg)%cmacBlockSize == 0
	}

	var last [cmacBlockSize]byte
	if lastComplete {
		copy(last[:], msg[(n-1)*cmacBlockSize:])
		xorBlock(&last, k1)
	} else {
		rest := msg[(n-1)*cmacBlockSize:]
		copy(last[:], rest)
		last[len(rest)] = 0x80
		xorBlock(&last, k2)
	}

	var x [cmacBlockSize]byte
	for i := 0; i < n-1; i++ {
		xorBytes(&x, msg[i*cmacBlockSize:(i+1)*cmacBlockSize])
		block.Encrypt(x[:], x[:])
	}
	xorBlock(&x, last)
	block.Encrypt(x[:], x[:])

	tag := make([]byte, cmacBlockSize)
	copy(tag, x[:])
	return tag, nil
}

// CMACVerify reports whether tag is the CMAC of msg under key, in constant
// time over the tag comparison.
func CMACVerify(key, msg, tag []byte) (bool, error) {
	want, err := CMAC(key, msg)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(want, tag) == 1, nil
}

func cmacSubkeys(encrypt func(dst, src []byte)) (k1, k2 [cmacBlockSize]byte) {
	var l [cmacBlockSize]byte
	encrypt(l[:], l[:])
	k1 = cmacShiftXor(l)
	k2 = cmacShiftXor(k1)
	return k1, k2
}

// cmacShiftXor shifts the block one bit left and conditionally xors the
// constant Rb into the last byte, per RFC 4493 subkey generation.
func cmacShiftXor(in [cmacBlockSize]byte) [cmacBlockSize]byte {
	var out [cmacBlockSize]byte
	var carry byte
	for i := cmacBlockSize - 1; i >= 0; i-- {
		out[i] = in[i]<<1 | carry
		carry = in[i] >> 7
	}
	if carry != 0 {
		out[cmacBlockSize-1] ^= 0x87
	}
	return out
}

func xorBlock(dst *[cmacBlockSize]byte, src [cmacBlockSize]byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

func xorBytes(dst *[cmacBlockSize]byte, src []byte) {
	for i := range src {
		dst[i] ^= src[i]
	}
}
