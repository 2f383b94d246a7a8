package reservation

import (
	"crypto/rand"
	"regexp"
)

// 紛らわしい文字（0/O, 1/I）を除いた英数字
const pnrAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const pnrLength = 6

var pnrPattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// GeneratePNR は6文字の予約番号を生成する
func GeneratePNR() string {
	b := make([]byte, pnrLength)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand: " + err.Error())
	}
	for i := range b {
		b[i] = pnrAlphabet[int(b[i])%len(pnrAlphabet)]
	}
	return string(b)
}

// ValidatePNR は予約番号の形式を検証する
func ValidatePNR(pnr string) error {
	if !pnrPattern.MatchString(pnr) {
		return ErrInvalidPNR
	}
	return nil
}
