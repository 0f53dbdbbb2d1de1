package daemon

import (
	"errors"

	"github.com/containerd/errdefs"

	"github.com/corvus-paas/controlplane/corvuserr"
)

// mapErr translates a Docker SDK error into the control plane's error kind
// taxonomy via containerd's errdefs predicates, the same family of helpers
// the Docker SDK itself uses to classify daemon responses.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errdefs.IsNotFound(err):
		return corvuserr.New(corvuserr.KindNotFound, op, err)
	case errdefs.IsConflict(err):
		return corvuserr.New(corvuserr.KindConflict, op, err)
	case errdefs.IsInvalidArgument(err):
		return corvuserr.New(corvuserr.KindBadRequest, op, err)
	default:
		return corvuserr.New(corvuserr.KindDaemonError, op, err)
	}
}

// isNotFoundErr is a narrow helper for call sites that only care about the
// not-found case (KillContainer, RemoveContainer, and NetworkDisconnect
// treat a vanished container as already done).
func isNotFoundErr(err error) bool {
	return errors.Is(err, errdefs.ErrNotFound) || errdefs.IsNotFound(err)
}
