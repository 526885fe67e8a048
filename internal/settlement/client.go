package settlement

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotConnected is returned by operations attempted before Connect.
	ErrNotConnected = errors.New("settlement network client is not connected")
	// ErrMissingReceipt signals a transfer that returned success without a
	// receipt identifier. That is a hard failure, never a silent success.
	ErrMissingReceipt = errors.New("settlement transfer returned no receipt id")
)

// NetworkClient defines the interface for the settlement network used to hold
// idle cash and move funds between venues. The wire protocol behind it is an
// implementation detail; the core only depends on this surface.
//
// Amounts cross this boundary as integer minimum units (see
// utils.USDToMinimalUnits); USD floats never reach the ledger.
type NetworkClient interface {
	// Connect establishes the network session.
	Connect(ctx context.Context) error

	// Authenticate proves account ownership on an established session.
	Authenticate(ctx context.Context) error

	// Connected reports whether a usable session exists.
	Connected() bool

	// GetLedgerBalance returns the available balance of an asset in USD
	// equivalent.
	GetLedgerBalance(ctx context.Context, asset string) (float64, error)

	// AssetPrecision returns the decimal precision the network ledgers the
	// asset at (e.g. 6 for USDC).
	AssetPrecision(asset string) int

	// Transfer submits a payment of the given minimum-unit amount and
	// returns the network's receipt identifier.
	Transfer(ctx context.Context, destination, asset string, amount decimal.Decimal) (string, error)

	// Disconnect tears the session down.
	Disconnect() error
}
