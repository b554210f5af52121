package media

import "errors"

// aacSampleRates is the MPEG-4 Audio sampling_frequency_index table used by
// AudioSpecificConfig and the ADTS header.
var aacSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350, 0, 0, 0,
}

// AudioSpecificConfig is the parsed payload of an AAC sequence header (the
// audio tag body's payload from byte 2 onward when AACPacketType == 0).
type AudioSpecificConfig struct {
	ObjectType      byte
	SampleRateIndex byte
	ChannelConfig   byte
}

// ParseAudioSpecificConfig reads the 2-byte (minimum) AudioSpecificConfig:
// 5 bits audioObjectType, 4 bits samplingFrequencyIndex, 4 bits
// channelConfiguration.
func ParseAudioSpecificConfig(b []byte) (*AudioSpecificConfig, error) {
	if len(b) < 2 {
		return nil, errors.New("AudioSpecificConfig too short")
	}
	objectType := b[0] >> 3
	sampleRateIndex := ((b[0] & 0x07) << 1) | (b[1] >> 7)
	channelConfig := (b[1] >> 3) & 0x0F
	return &AudioSpecificConfig{
		ObjectType:      objectType,
		SampleRateIndex: sampleRateIndex,
		ChannelConfig:   channelConfig,
	}, nil
}

// ADTSHeader builds the 7-byte ADTS header for one AAC raw frame of the
// given payload length, using this config's profile/sample-rate/channel
// fields. Browsers and most AAC decoders that aren't handed raw
// AudioSpecificConfig out-of-band expect ADTS-framed frames.
func (c *AudioSpecificConfig) ADTSHeader(payloadLen int) []byte {
	frameLen := payloadLen + 7
	profile := c.ObjectType - 1 // ADTS profile field is AOT - 1

	h := make([]byte, 7)
	h[0] = 0xFF
	h[1] = 0xF1 // syncword cont., MPEG-4, no CRC
	h[2] = (profile << 6) | ((c.SampleRateIndex & 0x0F) << 2) | ((c.ChannelConfig >> 2) & 0x01)
	h[3] = ((c.ChannelConfig & 0x03) << 6) | byte(frameLen>>11)
	h[4] = byte(frameLen >> 3)
	h[5] = byte((frameLen&0x07)<<5) | 0x1F
	h[6] = 0xFC
	return h
}

// SampleRate returns the sampling frequency in Hz encoded by the config's
// index, or 0 if the index is reserved.
func (c *AudioSpecificConfig) SampleRate() int {
	if int(c.SampleRateIndex) >= len(aacSampleRates) {
		return 0
	}
	return aacSampleRates[c.SampleRateIndex]
}
