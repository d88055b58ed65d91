package grpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/erg0nix/kontekst-governor/internal/governor"
	"github.com/erg0nix/kontekst-governor/internal/snapshot"
)

// toStruct encodes v through its JSON form, so Struct field names follow the json tags.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}

	return structpb.NewStruct(fields)
}

func fromStruct(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// continuityFields is the wire shape of the four snapshot parts pushed by an executor.
type continuityFields struct {
	Context   string `json:"context"`
	Progress  string `json:"progress"`
	Decisions string `json:"decisions"`
	Next      string `json:"next"`
}

func continuityFromStruct(s *structpb.Struct) (snapshot.Snapshot, error) {
	var fields continuityFields
	if err := fromStruct(s, &fields); err != nil {
		return snapshot.Snapshot{}, err
	}

	return snapshot.Snapshot{
		Context:   fields.Context,
		Progress:  fields.Progress,
		Decisions: fields.Decisions,
		Next:      fields.Next,
	}, nil
}

func continuityToStruct(snap snapshot.Snapshot) (*structpb.Struct, error) {
	return toStruct(continuityFields{
		Context:   snap.Context,
		Progress:  snap.Progress,
		Decisions: snap.Decisions,
		Next:      snap.Next,
	})
}

func toStatusError(err error) error {
	switch {
	case errors.Is(err, governor.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, snapshot.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, governor.ErrNoContinuity):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// remoteError keeps the server's message while restoring the local error kind.
type remoteError struct {
	kind error
	msg  string
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.kind }

func fromStatusError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.InvalidArgument:
		return &remoteError{kind: governor.ErrInvalidInput, msg: st.Message()}
	case codes.NotFound:
		return &remoteError{kind: snapshot.ErrNotFound, msg: st.Message()}
	case codes.FailedPrecondition:
		return &remoteError{kind: governor.ErrNoContinuity, msg: st.Message()}
	default:
		return err
	}
}
