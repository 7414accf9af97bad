package grpc

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ac "github.com/panyam/authcore"
)

// ToStatus converts an authcore error into a gRPC status error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	var ae *ac.AuthError
	if !errors.As(err, &ae) {
		return status.Error(codes.Internal, err.Error())
	}
	return status.Error(Code(ae), ae.Message)
}

// Code maps an error kind onto a gRPC code.
func Code(ae *ac.AuthError) codes.Code {
	switch ae.Kind {
	case ac.KindBadRequest:
		return codes.InvalidArgument
	case ac.KindAuthFailed:
		return codes.Unauthenticated
	case ac.KindNotFound:
		return codes.NotFound
	case ac.KindConflict:
		if errors.Is(ae, ac.ErrDuplicate) {
			return codes.AlreadyExists
		}
		return codes.FailedPrecondition
	}
	return codes.Internal
}
