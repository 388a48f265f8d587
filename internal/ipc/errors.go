package ipc

import "errors"

// Error kinds from the taxonomy. These are sentinels, not types — wrap
// them with fmt.Errorf("...: %w", ErrX) so callers can errors.Is against
// the kind without caring about the specific failure site.
var (
	ErrConnection  = errors.New("ipc: connection error")
	ErrTimeout     = errors.New("ipc: timeout")
	ErrProtocol    = errors.New("ipc: protocol error")
	ErrDisconnected = errors.New("ipc: disconnected")
)
