package media

import (
	"encoding/binary"
	"errors"
)

var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// AVCCToAnnexB converts an AVCC length-prefixed NAL unit stream (as
// carried in an RTMP/FLV VIDEODATA body from byte 5 onward, after the
// AVCPacketType/composition-time header) into Annex-B, replacing each
// 4-byte big-endian length prefix with a start code.
func AVCCToAnnexB(avcc []byte) ([]byte, error) {
	out := make([]byte, 0, len(avcc)+16)
	for len(avcc) > 0 {
		if len(avcc) < 4 {
			return nil, errors.New("truncated AVCC length prefix")
		}
		length := binary.BigEndian.Uint32(avcc[:4])
		avcc = avcc[4:]
		if uint32(len(avcc)) < length {
			return nil, errors.New("truncated AVCC NAL unit")
		}
		out = append(out, annexBStartCode...)
		out = append(out, avcc[:length]...)
		avcc = avcc[length:]
	}
	return out, nil
}

// AVCDecoderConfig is the parsed AVCDecoderConfigurationRecord carried in
// an AVC sequence header (the video tag body's payload from byte 5
// onward when AVCPacketType == 0).
type AVCDecoderConfig struct {
	SPS [][]byte
	PPS [][]byte
}

// ParseAVCDecoderConfig extracts the SPS/PPS NAL units from an
// AVCDecoderConfigurationRecord. Layout: configurationVersion(1),
// AVCProfileIndication(1), profile_compatibility(1), AVCLevelIndication(1),
// lengthSizeMinusOne(1, low 2 bits), numOfSPS(1, low 5 bits), then for
// each SPS a 2-byte length + data, then numOfPPS(1) and PPS entries the
// same way.
func ParseAVCDecoderConfig(record []byte) (*AVCDecoderConfig, error) {
	if len(record) < 6 {
		return nil, errors.New("AVCDecoderConfigurationRecord too short")
	}
	pos := 5
	numSPS := int(record[pos] & 0x1F)
	pos++

	cfg := &AVCDecoderConfig{}
	for i := 0; i < numSPS; i++ {
		if pos+2 > len(record) {
			return nil, errors.New("truncated SPS length")
		}
		l := int(binary.BigEndian.Uint16(record[pos : pos+2]))
		pos += 2
		if pos+l > len(record) {
			return nil, errors.New("truncated SPS data")
		}
		cfg.SPS = append(cfg.SPS, record[pos:pos+l])
		pos += l
	}

	if pos >= len(record) {
		return nil, errors.New("missing PPS count")
	}
	numPPS := int(record[pos])
	pos++
	for i := 0; i < numPPS; i++ {
		if pos+2 > len(record) {
			return nil, errors.New("truncated PPS length")
		}
		l := int(binary.BigEndian.Uint16(record[pos : pos+2]))
		pos += 2
		if pos+l > len(record) {
			return nil, errors.New("truncated PPS data")
		}
		cfg.PPS = append(cfg.PPS, record[pos:pos+l])
		pos += l
	}

	return cfg, nil
}

// AnnexBParameterSets renders the SPS/PPS of a parsed config as
// Annex-B-framed bytes (start code + NAL unit, for each SPS then each
// PPS), ready to prepend to the first keyframe delivered to a subscriber.
func (c *AVCDecoderConfig) AnnexBParameterSets() []byte {
	var out []byte
	for _, sps := range c.SPS {
		out = append(out, annexBStartCode...)
		out = append(out, sps...)
	}
	for _, pps := range c.PPS {
		out = append(out, annexBStartCode...)
		out = append(out, pps...)
	}
	return out
}
