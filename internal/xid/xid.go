package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// Numbered formats a year-scoped document number such as SALE-2025-000042.
// The sequence restarts each calendar year.
func Numbered(kind string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", kind, year, seq)
}
