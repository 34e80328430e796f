package opcua

import (
	"context"
	"errors"

	"github.com/gopcua/opcua/ua"
	"github.com/newthinker/sigalign/internal/core"
)

var authStatus = map[ua.StatusCode]bool{
	ua.StatusBadIdentityTokenInvalid:  true,
	ua.StatusBadIdentityTokenRejected: true,
	ua.StatusBadUserAccessDenied:      true,
	ua.StatusBadSecurityChecksFailed:  true,
	ua.StatusBadCertificateInvalid:    true,
	ua.StatusBadCertificateUntrusted:  true,
}

var connectionStatus = map[ua.StatusCode]bool{
	ua.StatusBadTimeout:             true,
	ua.StatusBadCommunicationError:  true,
	ua.StatusBadConnectionClosed:    true,
	ua.StatusBadSecureChannelClosed: true,
	ua.StatusBadServerNotConnected:  true,
	ua.StatusBadSessionClosed:       true,
	ua.StatusBadSessionIDInvalid:    true,
	ua.StatusBadTooManySessions:     true,
	ua.StatusBadServerHalted:        true,
	ua.StatusBadNotConnected:        true,
	ua.StatusBadConnectionRejected:  true,
}

// mapError classifies a session error. Errors already classified keep their
// code; an expired or cancelled context is a connection failure.
func mapError(ctx context.Context, err error) *core.Error {
	if e, ok := core.AsError(err); ok {
		return e
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return core.WrapError(core.ErrConnection, err)
	}

	var status ua.StatusCode
	if errors.As(err, &status) {
		switch {
		case authStatus[status]:
			return core.WrapError(core.ErrAuth, err)
		case connectionStatus[status]:
			return core.WrapError(core.ErrConnection, err)
		default:
			return core.WrapError(core.ErrQuery, err)
		}
	}

	// Dial and transport failures carry no status.
	return core.WrapError(core.ErrConnection, err)
}
