package gateway

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// ProtocolHeader carries the protocol version a client speaks.
const ProtocolHeader = "GridProtocolVersion"

// Version is reported to clients rejected by protocol negotiation.
var Version = "0.1.0"

// ProtocolRange is the inclusive range of protocol versions a route accepts.
type ProtocolRange struct {
	Min uint32 `json:"min" yaml:"min" mapstructure:"min"`
	Max uint32 `json:"max" yaml:"max" mapstructure:"max"`
}

// AnyProtocol accepts every version.
var AnyProtocol = ProtocolRange{Min: 0, Max: math.MaxUint32}

// ProtocolRoutes assigns protocol ranges to routes by their first path
// segment ("/agent" covers "/agent/{public_key}" too).
type ProtocolRoutes struct {
	Default ProtocolRange
	Routes  map[string]ProtocolRange
}

// For returns the range that applies to path.
func (p ProtocolRoutes) For(path string) ProtocolRange {
	seg := "/" + strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)[0]
	if r, ok := p.Routes[seg]; ok {
		return r
	}
	return p.Default
}

// CheckProtocol validates a GridProtocolVersion header value against r. An
// absent header is accepted; the client is assumed to cope with whatever
// version it receives.
func CheckProtocol(header string, r ProtocolRange) error {
	if header == "" {
		return nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(header), 10, 32)
	if err != nil {
		return &Error{
			Status:  http.StatusBadRequest,
			Code:    CodeProtocolVersion,
			Message: ProtocolHeader + " must be a valid positive integer",
		}
	}
	v := uint32(n)

	switch {
	case v < r.Min:
		return protocolError(v, r.Min, fmt.Sprintf("Client must support protocol version %d or greater.", r.Min))
	case v > r.Max:
		return protocolError(v, r.Max, fmt.Sprintf("Client requires a newer protocol than can be provided: %d > %d", v, r.Max))
	}
	return nil
}

func protocolError(requested, grid uint32, msg string) *Error {
	return &Error{
		Status:            http.StatusBadRequest,
		Code:              CodeProtocolVersion,
		Message:           msg,
		RequestedProtocol: &requested,
		GridProtocol:      &grid,
		GridstateVersion:  Version,
	}
}
