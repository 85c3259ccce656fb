package chunk

import "google.golang.org/protobuf/proto"

// RecordUnmarshaler is the injected record parser: the decoder hands it
// each record's bytes and does not interpret the record beyond that.
type RecordUnmarshaler interface {
	// UnmarshalRecord parses one record. The data slice may alias the
	// decoder's value stream and is only valid until the decoder's next
	// reset.
	UnmarshalRecord(data []byte) error
}

// RawRecord is the identity parser: it captures the record bytes as-is.
//
// The captured slice aliases the decoder's value stream; copy it if it must
// outlive the decoder's next reset.
type RawRecord []byte

// UnmarshalRecord implements RecordUnmarshaler.
func (r *RawRecord) UnmarshalRecord(data []byte) error {
	*r = data
	return nil
}

// ProtoRecord parses records as protocol buffer messages into Message.
type ProtoRecord struct {
	Message proto.Message
}

// UnmarshalRecord implements RecordUnmarshaler.
func (p ProtoRecord) UnmarshalRecord(data []byte) error {
	return proto.Unmarshal(data, p.Message)
}
