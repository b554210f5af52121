package media

import "testing"

func TestParseAudioSpecificConfig(t *testing.T) {
	// AOT=2 (AAC LC), sampleRateIndex=4 (44100), channelConfig=2 (stereo):
	// 00010 0100 0010 0000
	asc := []byte{0x12, 0x10}
	cfg, err := ParseAudioSpecificConfig(asc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ObjectType != 2 {
		t.Errorf("expected object type 2, got %d", cfg.ObjectType)
	}
	if cfg.SampleRateIndex != 4 {
		t.Errorf("expected sample rate index 4, got %d", cfg.SampleRateIndex)
	}
	if cfg.ChannelConfig != 2 {
		t.Errorf("expected channel config 2, got %d", cfg.ChannelConfig)
	}
	if cfg.SampleRate() != 44100 {
		t.Errorf("expected sample rate 44100, got %d", cfg.SampleRate())
	}
}

func TestParseAudioSpecificConfig_TooShort(t *testing.T) {
	if _, err := ParseAudioSpecificConfig([]byte{0x12}); err == nil {
		t.Error("expected error for short config")
	}
}

func TestADTSHeader(t *testing.T) {
	cfg := &AudioSpecificConfig{ObjectType: 2, SampleRateIndex: 4, ChannelConfig: 2}
	header := cfg.ADTSHeader(100)
	if len(header) != 7 {
		t.Fatalf("expected 7-byte ADTS header, got %d", len(header))
	}
	if header[0] != 0xFF || header[1] != 0xF1 {
		t.Errorf("unexpected sync word: %02x %02x", header[0], header[1])
	}

	frameLen := (int(header[3]&0x03) << 11) | (int(header[4]) << 3) | (int(header[5]) >> 5)
	if frameLen != 107 {
		t.Errorf("expected frame length 107, got %d", frameLen)
	}
}
