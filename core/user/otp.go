package user

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const otpLength = 6

var otpMax = func() *big.Int {
	max := big.NewInt(10)
	return max.Exp(max, big.NewInt(otpLength), nil)
}()

// generateOTPCode returns a zero-padded numeric code of otpLength digits.
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpMax)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpLength, n), nil
}
