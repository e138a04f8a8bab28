package access

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Fingerprint describes the requesting browser. It is an optional forensic
// attachment to a ledger entry, never an identity on its own.
type Fingerprint struct {
	UserAgent    string   `json:"user_agent,omitempty"`
	Language     string   `json:"language,omitempty"`
	Timezone     string   `json:"timezone,omitempty"`
	ScreenWidth  int      `json:"screen_width,omitempty"`
	ScreenHeight int      `json:"screen_height,omitempty"`
	Canvas       string   `json:"canvas,omitempty"`
	WebGL        string   `json:"webgl,omitempty"`
	Fonts        []string `json:"fonts,omitempty"`
	Hash         string   `json:"hash,omitempty"`
}

// ComputeHash derives the stable fingerprint hash from the structured
// signals. Field order is fixed so equal payloads always hash the same.
func (f *Fingerprint) ComputeHash() string {
	if f == nil {
		return ""
	}
	parts := []string{
		f.UserAgent,
		f.Language,
		f.Timezone,
		strconv.Itoa(f.ScreenWidth) + "x" + strconv.Itoa(f.ScreenHeight),
		f.Canvas,
		f.WebGL,
		strings.Join(f.Fonts, ","),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
