package wire

import (
	"fmt"

	"github.com/golang/protobuf/proto"
)

// LinePayload is the body of one produced message: the identity of the source
// and the content of one line. Encoded with protobuf so source names may
// contain any byte sequence, including would-be field delimiters.
type LinePayload struct {
	Name string `protobuf:"bytes,1,opt,name=name,proto3"`
	Text string `protobuf:"bytes,2,opt,name=text,proto3"`
}

func (*LinePayload) Reset()         {}
func (*LinePayload) String() string { return "LinePayload" }
func (*LinePayload) ProtoMessage()  {}

func Marshal(p *LinePayload) ([]byte, error) {
	if p == nil || p.Name == "" {
		return nil, fmt.Errorf("line payload name is required")
	}
	return proto.Marshal(p)
}

func Unmarshal(payload []byte) (*LinePayload, error) {
	var p LinePayload
	if err := proto.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal line payload: %w", err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("line payload name is required")
	}
	return &p, nil
}
