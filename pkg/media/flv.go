package media

import "encoding/binary"

// FlvHeader is the 13-byte FLV file header plus the initial zero
// previous-tag-size field: "FLV" version=1, flags=0x05 (audio+video
// present), header length 9, then a leading 0x00000000 previous-tag-size.
var FlvHeader = []byte{
	0x46, 0x4c, 0x56, // "FLV"
	0x01,                   // version
	0x05,                   // audio+video present
	0x00, 0x00, 0x00, 0x09, // header length
	0x00, 0x00, 0x00, 0x00, // previous tag size 0
}

const (
	flvTagAudio  = 0x08
	flvTagVideo  = 0x09
	flvTagScript = 0x12
)

// tagType returns the FLV tag type byte for a media event, or false if
// the event's kind has no FLV tag representation.
func tagType(k Kind) (byte, bool) {
	switch k {
	case Audio, AudioHeader:
		return flvTagAudio, true
	case Video, VideoHeader:
		return flvTagVideo, true
	case Metadata:
		return flvTagScript, true
	default:
		return 0, false
	}
}

// EncodeFlvTag serializes one media event as an FLV tag: the 11-byte tag
// header, the payload (already in FLV tag-body form), and the trailing
// 4-byte previous-tag-size field, all as a single contiguous write.
func EncodeFlvTag(e Event) ([]byte, bool) {
	typ, ok := tagType(e.Kind)
	if !ok {
		return nil, false
	}

	out := make([]byte, 11+len(e.Payload)+4)
	out[0] = typ
	putUint24(out[1:4], uint32(len(e.Payload)))
	putUint24(out[4:7], e.Timestamp&0xFFFFFF)
	out[7] = byte(e.Timestamp >> 24)
	// stream id: 3 bytes, always 0, already zeroed.
	copy(out[11:], e.Payload)

	tagSize := uint32(11 + len(e.Payload))
	binary.BigEndian.PutUint32(out[11+len(e.Payload):], tagSize)
	return out, true
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// DecodeFlvTag parses one serialized FLV tag (header + body + trailer,
// as produced by EncodeFlvTag) back into timestamp, tag type and body. It
// is the inverse used by round-trip tests; it does not attempt to
// classify the body back into a media.Event since that requires codec
// context FLV alone doesn't carry.
func DecodeFlvTag(b []byte) (tagType byte, timestamp uint32, body []byte, ok bool) {
	if len(b) < 15 {
		return 0, 0, nil, false
	}
	typ := b[0]
	dataSize := uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	ts := uint32(b[4])<<16 | uint32(b[5])<<8 | uint32(b[6])
	ts |= uint32(b[7]) << 24
	if len(b) < int(11+dataSize+4) {
		return 0, 0, nil, false
	}
	body = b[11 : 11+dataSize]
	return typ, ts, body, true
}
