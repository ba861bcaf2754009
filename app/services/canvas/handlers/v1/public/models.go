package public

import "time"

// canvasState is the full board as served to a client that cannot hold a
// websocket open.
type canvasState struct {
	Width  int               `json:"width"`
	Height int               `json:"height"`
	Pixels map[string]string `json:"pixels"`
}

// config is the board geometry and pricing a frontend needs to render the
// purchase flow.
type config struct {
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	PackCostSompi uint64 `json:"packCostSompi"`
	PackSize      uint   `json:"packSize"`
}

// pixel is a persisted placement with its provenance.
type pixel struct {
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Color     string    `json:"color"`
	Wallet    string    `json:"wallet,omitempty"`
	TxID      string    `json:"txId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// newPixel is the payload for placing a pixel with a credit.
type newPixel struct {
	X      int    `json:"x" validate:"gte=0"`
	Y      int    `json:"y" validate:"gte=0"`
	Color  string `json:"color" validate:"required,hexcolor"`
	Wallet string `json:"wallet" validate:"required"`
	TxID   string `json:"txId"`
}

// placed reports the outcome of a placement.
type placed struct {
	Status  string `json:"status"`
	Balance uint   `json:"balance"`
}

// newPurchase is the payload for submitting a credit purchase.
type newPurchase struct {
	Wallet      string `json:"wallet" validate:"required"`
	TxID        string `json:"txId" validate:"required"`
	AmountSompi uint64 `json:"amountSompi" validate:"required,gt=0"`
}

// purchase reports the state of a submitted payment.
type purchase struct {
	TxID    string `json:"txId"`
	Wallet  string `json:"wallet"`
	Status  string `json:"status"`
	Credits uint   `json:"credits"`
	Balance uint   `json:"balance"`
}

// balance reports a wallet's credit count.
type balance struct {
	Wallet  string `json:"wallet"`
	Credits uint   `json:"credits"`
}

// verification is a single verification poll verdict.
type verification struct {
	TxID             string `json:"txId"`
	Verified         bool   `json:"verified"`
	ConfirmationTime string `json:"confirmationTime,omitempty"`
	BlockHash        string `json:"blockHash,omitempty"`
	BlockHeight      int64  `json:"blockHeight,omitempty"`
	Error            string `json:"error,omitempty"`
}
