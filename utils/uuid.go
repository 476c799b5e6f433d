package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new random (v4) identifier for auctions, wallets and ledger entries
func GenerateID() string {
	return uuid.NewString()
}
