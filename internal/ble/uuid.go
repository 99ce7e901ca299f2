package ble

import (
	"fmt"

	"github.com/google/uuid"
)

// DeriveUUID returns base with its 16-bit alias field (bytes 2-3) replaced by
// alias, the usual scheme for vendor 128-bit UUID families:
//
//	a5e10000-... alias 0x0003 -> a5e10003-...
func DeriveUUID(base string, alias uint16) (string, error) {
	u, err := uuid.Parse(base)
	if err != nil {
		return "", fmt.Errorf("ble: parse base UUID %q: %w", base, err)
	}
	u[2] = byte(alias >> 8)
	u[3] = byte(alias)
	return u.String(), nil
}
