package utils

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/bastagame/basta-client/internal"
)

// Room codes use uppercase letters and digits to avoid ambiguous pairs being
// a problem in voice chat (O/0 and I/1 still read fine in a six char code).
const roomCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateRoomCode returns a short human-enterable join code.
func GenerateRoomCode() string {
	var b strings.Builder
	for i := 0; i < internal.RoomCodeLength; i++ {
		b.WriteByte(roomCodeCharset[rand.Intn(len(roomCodeCharset))])
	}
	return b.String()
}

// RandomLetter draws the round letter from the playing alphabet.
func RandomLetter() string {
	return string(internal.Alphabet[rand.Intn(len(internal.Alphabet))])
}

// NormalizeRoomCode makes codes case-insensitive on input; they are stored
// and transmitted uppercase.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// DeriveNickname picks a display name for a user that joined without one:
// the local part of their email, or a short tag built from the user id.
func DeriveNickname(email, userId string) string {
	if email != "" {
		local := email
		if at := strings.IndexByte(email, '@'); at > 0 {
			local = email[:at]
		}
		if len(local) > 20 {
			local = local[:20]
		}
		return local
	}
	tag := userId
	if len(tag) > 8 {
		tag = tag[:8]
	}
	return fmt.Sprintf("User_%s", tag)
}
