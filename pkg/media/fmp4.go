package media

import (
	"encoding/binary"
)

// Fmp4Track describes the single video track carried by a fragmented MP4
// init segment.
type Fmp4Track struct {
	ID        uint32
	Timescale uint32
	Width     uint16
	Height    uint16
	SPS       [][]byte
	PPS       [][]byte
}

const DefaultFmp4Timescale uint32 = 90000

// Fmp4Encoder builds an init segment (ftyp+moov) and a sequence of movie
// fragments (moof+mdat), one fragment per delivered frame. Fragmenting on
// every keyframe rather than every NAL unit keeps each subscriber's
// MediaSource SourceBuffer append granularity aligned to GOP boundaries.
type Fmp4Encoder struct {
	track Fmp4Track
	seq   uint32
	dts   uint32
}

func NewFmp4Encoder(track Fmp4Track) *Fmp4Encoder {
	return &Fmp4Encoder{track: track}
}

// InitSegment returns the ftyp+moov boxes describing the track; it must be
// sent to a subscriber exactly once before any fragment.
func (e *Fmp4Encoder) InitSegment() []byte {
	out := ftypBox()
	out = append(out, moovBox(e.track)...)
	return out
}

// WrapFrame builds one moof+mdat fragment for a single Annex-B-independent
// access unit. duration is the real RTMP timestamp delta (in the track's
// timescale) since the previous frame, so fragment timing reflects actual
// ingest cadence rather than an assumed fixed frame rate.
func (e *Fmp4Encoder) WrapFrame(data []byte, keyframe bool, duration uint32) []byte {
	sample := fmp4Sample{size: uint32(len(data)), duration: duration, keyframe: keyframe}
	out := moofBox(e.seq, e.dts, e.track.ID, sample)
	out = append(out, mdatBox(data)...)
	e.dts += duration
	e.seq++
	return out
}

type fmp4Sample struct {
	size     uint32
	duration uint32
	keyframe bool
}

func (s fmp4Sample) sampleFlags() uint32 {
	var dependsOn uint32 = 1
	var isNonSync uint32 = 1
	if s.keyframe {
		dependsOn = 2
		isNonSync = 0
	}
	return (dependsOn << 16) | (isNonSync << 0)
}

func mp4Box(boxType string, payloads ...[]byte) []byte {
	size := 8
	for _, p := range payloads {
		size += len(p)
	}
	out := make([]byte, 0, size)
	sizeBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(sizeBuf, uint32(size))
	out = append(out, sizeBuf...)
	out = append(out, []byte(boxType)...)
	for _, p := range payloads {
		out = append(out, p...)
	}
	return out
}

func ftypBox() []byte {
	return mp4Box("ftyp",
		[]byte("isom"),
		[]byte{0, 0, 0, 1},
		[]byte("isom"),
		[]byte("avc1"),
	)
}

func moovBox(track Fmp4Track) []byte {
	return mp4Box("moov",
		mvhdBox(track.Timescale),
		trakBox(track),
		mvexBox(track.ID),
	)
}

func mvhdBox(timescale uint32) []byte {
	b := make([]byte, 100)
	b[3] = 0
	binary.BigEndian.PutUint32(b[4:], 1)
	binary.BigEndian.PutUint32(b[8:], 2)
	binary.BigEndian.PutUint32(b[12:], timescale)
	binary.BigEndian.PutUint32(b[16:], 0)
	binary.BigEndian.PutUint32(b[20:], 0x00010000)
	b[24] = 0x01
	unityMatrix(b[36:])
	binary.BigEndian.PutUint32(b[96:], 0xFFFFFFFF)
	return mp4Box("mvhd", b)
}

func unityMatrix(b []byte) {
	binary.BigEndian.PutUint32(b[0:], 0x00010000)
	binary.BigEndian.PutUint32(b[20:], 0x00010000)
	binary.BigEndian.PutUint32(b[32:], 0x40000000)
}

func trakBox(track Fmp4Track) []byte {
	return mp4Box("trak", tkhdBox(track), mdiaBox(track))
}

func tkhdBox(track Fmp4Track) []byte {
	b := make([]byte, 84)
	b[3] = 0x07
	binary.BigEndian.PutUint32(b[8:], track.ID)
	unityMatrixForTkhd(b[40:])
	binary.BigEndian.PutUint32(b[76:], uint32(track.Width)<<16)
	binary.BigEndian.PutUint32(b[80:], uint32(track.Height)<<16)
	return mp4Box("tkhd", b)
}

func unityMatrixForTkhd(b []byte) {
	binary.BigEndian.PutUint32(b[0:], 0x00010000)
	binary.BigEndian.PutUint32(b[20:], 0x00010000)
	binary.BigEndian.PutUint32(b[32:], 0x40000000)
}

func mdiaBox(track Fmp4Track) []byte {
	return mp4Box("mdia", mdhdBox(track.Timescale), hdlrBox(), minfBox(track))
}

func mdhdBox(timescale uint32) []byte {
	b := make([]byte, 20)
	binary.BigEndian.PutUint32(b[4:], 2)
	binary.BigEndian.PutUint32(b[8:], 3)
	binary.BigEndian.PutUint32(b[12:], timescale)
	b[16] = 0x55
	b[17] = 0xc4
	return mp4Box("mdhd", b)
}

func hdlrBox() []byte {
	b := make([]byte, 33)
	copy(b[8:], "vide")
	copy(b[24:], "VideoHandler\x00")
	return mp4Box("hdlr", b)
}

func minfBox(track Fmp4Track) []byte {
	vmhd := mp4Box("vmhd", []byte{0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0})
	dref := mp4Box("dref", []byte{0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0x0c, 'u', 'r', 'l', ' ', 0, 0, 0, 1})
	dinf := mp4Box("dinf", dref)
	return mp4Box("minf", vmhd, dinf, stblBox(track))
}

func stblBox(track Fmp4Track) []byte {
	zeroEntries := []byte{0, 0, 0, 0, 0, 0, 0, 0}
	stsz := []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	return mp4Box("stbl",
		stsdBox(track),
		mp4Box("stts", zeroEntries),
		mp4Box("stsc", zeroEntries),
		mp4Box("stsz", stsz),
		mp4Box("stco", zeroEntries),
	)
}

func stsdBox(track Fmp4Track) []byte {
	header := []byte{0, 0, 0, 0, 0, 0, 0, 1}
	return mp4Box("stsd", header, avc1Box(track))
}

func avc1Box(track Fmp4Track) []byte {
	b := make([]byte, 78)
	binary.BigEndian.PutUint16(b[6:], 1)
	binary.BigEndian.PutUint16(b[24:], track.Width)
	binary.BigEndian.PutUint16(b[26:], track.Height)
	binary.BigEndian.PutUint32(b[28:], 0x00480000)
	binary.BigEndian.PutUint32(b[32:], 0x00480000)
	binary.BigEndian.PutUint16(b[40:], 1)
	binary.BigEndian.PutUint16(b[74:], 24)
	b[75] = 0x00
	binary.BigEndian.PutUint16(b[76:], 0xFFFF)
	return mp4Box("avc1", b, avccBox(track), btrtBox())
}

func avccBox(track Fmp4Track) []byte {
	var sps, pps []byte
	for _, s := range track.SPS {
		l := make([]byte, 2)
		binary.BigEndian.PutUint16(l, uint16(len(s)))
		sps = append(sps, l...)
		sps = append(sps, s...)
	}
	for _, p := range track.PPS {
		l := make([]byte, 2)
		binary.BigEndian.PutUint16(l, uint16(len(p)))
		pps = append(pps, l...)
		pps = append(pps, p...)
	}

	var profile, compat, level byte
	if len(track.SPS) > 0 && len(track.SPS[0]) >= 3 {
		profile = track.SPS[0][1]
		compat = track.SPS[0][2]
		level = track.SPS[0][3]
	}

	b := []byte{
		0x01, profile, compat, level,
		0xFC | 0x03,
		0xE0 | byte(len(track.SPS)),
	}
	b = append(b, sps...)
	b = append(b, byte(len(track.PPS)))
	b = append(b, pps...)
	return mp4Box("avcC", b)
}

func btrtBox() []byte {
	return mp4Box("btrt", []byte{
		0x00, 0x1c, 0x9c, 0x80,
		0x00, 0x2d, 0xc6, 0xc0,
		0x00, 0x2d, 0xc6, 0xc0,
	})
}

func mvexBox(trackID uint32) []byte {
	return mp4Box("mvex", trexBox(trackID))
}

func trexBox(trackID uint32) []byte {
	b := make([]byte, 20)
	binary.BigEndian.PutUint32(b[4:], trackID)
	binary.BigEndian.PutUint32(b[8:], 1)
	binary.BigEndian.PutUint32(b[20-4:], 0x00010001)
	return mp4Box("trex", b)
}

func moofBox(seq uint32, baseMediaDecodeTime uint32, trackID uint32, sample fmp4Sample) []byte {
	return mp4Box("moof", mfhdBox(seq), trafBox(trackID, baseMediaDecodeTime, sample))
}

func mfhdBox(seq uint32) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[4:], seq)
	return mp4Box("mfhd", b)
}

func trafBox(trackID uint32, baseMediaDecodeTime uint32, sample fmp4Sample) []byte {
	tfhd := tfhdBox(trackID)
	tfdt := tfdtBox(baseMediaDecodeTime)

	offset := uint32(len(tfhd) + len(tfdt) + 8 /* traf header */ + 16 /* mfhd */ + 8 /* moof header */)
	trun := trunBox(offset, sample)
	sdtp := sdtpBox(sample)
	return mp4Box("traf", tfhd, tfdt, trun, sdtp)
}

func tfhdBox(trackID uint32) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[4:], trackID)
	return mp4Box("tfhd", b)
}

func tfdtBox(baseMediaDecodeTime uint32) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[4:], baseMediaDecodeTime)
	return mp4Box("tfdt", b)
}

func trunBox(offset uint32, sample fmp4Sample) []byte {
	dataOffset := offset + 8 + 12 + 16

	b := make([]byte, 0, 16)
	b = append(b, 0x00, 0x00, 0x0F, 0x01) // version 0, flags
	countBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(countBuf, 1)
	b = append(b, countBuf...)
	offBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(offBuf, dataOffset)
	b = append(b, offBuf...)

	durBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(durBuf, sample.duration)
	b = append(b, durBuf...)
	sizeBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(sizeBuf, sample.size)
	b = append(b, sizeBuf...)
	flagsBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(flagsBuf, sample.sampleFlags())
	b = append(b, flagsBuf...)
	ctsBuf := make([]byte, 4)
	b = append(b, ctsBuf...)

	return mp4Box("trun", b)
}

func sdtpBox(sample fmp4Sample) []byte {
	b := []byte{0, 0, 0, 0, byte(sample.sampleFlags() >> 16)}
	return mp4Box("sdtp", b)
}

func mdatBox(data []byte) []byte {
	return mp4Box("mdat", data)
}
