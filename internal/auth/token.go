package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// GenerateCIToken returns a random CI token and the hash to configure on
// the server. Only the hash is ever stored.
func GenerateCIToken() (token string, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate random: %w", err)
	}

	token = "apkh_" + hex.EncodeToString(b)
	hash = HashToken(token)
	return token, hash, nil
}

func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenSet holds the hashes of accepted CI tokens.
type TokenSet struct {
	hashes [][]byte
}

// NewTokenSet parses a comma-separated list of token hashes.
func NewTokenSet(hashes string) *TokenSet {
	s := &TokenSet{}
	for _, h := range strings.Split(hashes, ",") {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			s.hashes = append(s.hashes, []byte(h))
		}
	}
	return s
}

func (s *TokenSet) Len() int {
	return len(s.hashes)
}

// Match reports whether token hashes to one of the configured hashes, and
// returns a short identifier for logs.
func (s *TokenSet) Match(token string) (string, bool) {
	hash := []byte(HashToken(token))
	matched := false
	for _, h := range s.hashes {
		if subtle.ConstantTimeCompare(h, hash) == 1 {
			matched = true
		}
	}
	if !matched {
		return "", false
	}
	return "ci:" + string(hash[:12]), true
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
