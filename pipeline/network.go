package pipeline

import (
	"context"

	"github.com/corvus-paas/controlplane/daemon"
)

// EnsureNetwork inspects the shared network and creates it if absent.
// Exported so the tag/migration engine, which needs the identical guarantee
// before attaching a foreign container, does not duplicate this logic.
func EnsureNetwork(ctx context.Context, client daemon.Client, name string) error {
	if _, err := client.NetworkInspect(ctx, name); err == nil {
		return nil
	}
	// NetworkCreate itself treats "already exists" as success, so a
	// concurrent creator racing us here still converges.
	return client.NetworkCreate(ctx, name)
}
