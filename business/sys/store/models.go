package store

import "time"

// Pixel is one persisted pixel placement. Pixels are keyed by coordinate,
// so placing over an existing pixel replaces it.
type Pixel struct {
	X         int
	Y         int
	Color     string
	Wallet    string
	TxID      string
	CreatedAt time.Time
}

// Transaction is one submitted payment pending or past verification. The
// Verified flag is monotonic: once flipped to true it never goes back.
type Transaction struct {
	TxID        string
	Wallet      string
	AmountSompi uint64
	Credits     uint
	Verified    bool
	CreatedAt   time.Time
}

// Balance is the credit count held by one wallet address.
type Balance struct {
	Wallet    string
	Credits   uint
	UpdatedAt time.Time
}
