package room

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// codeAlphabet は招待コードに使う文字。読み間違えやすい I, O, 0, 1 を除く。
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateCode は指定長のランダムな招待コードを生成する。
func GenerateCode(length int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate room code: %w", err)
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// NormalizeCode は入力された招待コードを大文字に揃え、前後の空白を取り除く。
// 使用不可の文字を含む場合はfalseを返す。
func NormalizeCode(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || len(code) > 12 {
		return "", false
	}
	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			return "", false
		}
	}
	return code, true
}
