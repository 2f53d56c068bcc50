package binding

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/trust/internal/runtime/errors"
	"github.com/drblury/trust/internal/runtime/jsoncodec"
)

// Codec converts between a typed value and a message payload.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
	ContentType() string
}

// Codecs pairs the request and reply codecs of one binding.
type Codecs[Req, Rep any] struct {
	Request Codec[Req]
	Reply   Codec[Rep]
}

func (c Codecs[Req, Rep]) validate() error {
	if c.Request == nil || c.Reply == nil {
		return errspkg.ErrCodecRequired
	}
	return nil
}

// JSON returns codecs encoding both directions with jsoncodec.
func JSON[Req, Rep any]() Codecs[Req, Rep] {
	return Codecs[Req, Rep]{Request: jsoncodec.Codec[Req]{}, Reply: jsoncodec.Codec[Rep]{}}
}

// Proto returns codecs for protobuf requests and replies. Payloads use the
// protojson encoding unless binary is set.
func Proto[Req, Rep proto.Message](binary bool) Codecs[Req, Rep] {
	return Codecs[Req, Rep]{Request: ProtoCodec[Req]{Binary: binary}, Reply: ProtoCodec[Rep]{Binary: binary}}
}

// ProtoCodec encodes protobuf messages. T must be a pointer to a generated
// message type.
type ProtoCodec[T proto.Message] struct {
	// Binary selects the wire format instead of protojson.
	Binary bool
}

func (c ProtoCodec[T]) Encode(v T) ([]byte, error) {
	if c.Binary {
		return proto.Marshal(v)
	}
	return protojson.Marshal(v)
}

func (c ProtoCodec[T]) Decode(data []byte) (T, error) {
	var zero T
	msg, err := newProto[T]()
	if err != nil {
		return zero, err
	}
	if c.Binary {
		err = proto.Unmarshal(data, msg)
	} else {
		err = protojson.Unmarshal(data, msg)
	}
	if err != nil {
		return zero, fmt.Errorf("failed to unmarshal %T payload: %w", msg, err)
	}
	return msg, nil
}

func (c ProtoCodec[T]) ContentType() string {
	if c.Binary {
		return "application/x-protobuf"
	}
	return "application/json"
}

func newProto[T proto.Message]() (T, error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return zero, errspkg.ErrProtoPointerNeeded
	}
	msg, ok := reflect.New(typ.Elem()).Interface().(T)
	if !ok {
		return zero, fmt.Errorf("unexpected prototype type %s", typ)
	}
	return msg, nil
}
