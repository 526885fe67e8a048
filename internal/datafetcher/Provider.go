/*

This file contains the interface to external yield data providers. Providers
may fail or return stale data; an empty result means "nothing eligible right
now" and must end a cycle with no action, never with an error escalation.

*/

package datafetcher

import (
	"context"

	"github.com/elys-network/ara/internal/types"
)

// YieldDataProvider discovers candidate pools across chains and protocols.
type YieldDataProvider interface {
	// Scan fetches the current opportunity set.
	Scan(ctx context.Context) (types.ScanResult, error)
}
