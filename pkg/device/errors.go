package device

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/network-synapse/synapse/pkg/util"
)

// decodeError marks a response that could not be turned into JSON.
type decodeError struct {
	reason string
}

func (e *decodeError) Error() string { return e.reason }

// connectivityCodes are the gRPC statuses worth retrying.
var connectivityCodes = map[codes.Code]bool{
	codes.Unavailable:       true,
	codes.DeadlineExceeded:  true,
	codes.ResourceExhausted: true,
	codes.Aborted:           true,
}

// classify maps an RPC error onto the device error kinds. Errors that are
// already classified pass through.
func classify(op, address string, err error) error {
	var de *decodeError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, util.ErrConnectivity),
		errors.Is(err, util.ErrMalformedPayload),
		errors.Is(err, util.ErrDeviceRejected):
		return err
	case errors.As(err, &de):
		return util.NewMalformedPayloadError(op, address, de.reason)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return util.NewConnectivityError(op, address, err)
	}

	st, ok := status.FromError(err)
	if !ok {
		return util.NewConnectivityError(op, address, err)
	}
	if connectivityCodes[st.Code()] {
		return util.NewConnectivityError(op, address, err)
	}
	return util.NewDeviceRejectedError(op, address, err)
}
