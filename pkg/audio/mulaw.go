package audio

// G.711 μ-law codec for telephony media streams.
// Carriers deliver 8-bit μ-law at 8 kHz; the telephony transport decodes
// to PCM16 before resampling to the canonical rate.

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// MulawDecode converts one μ-law byte to a PCM16 sample.
func MulawDecode(b byte) int16 {
	b = ^b
	sign := int16(b & 0x80)
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F

	sample := int16(mantissa)<<3 + mulawBias
	sample <<= exponent
	sample -= mulawBias

	if sign != 0 {
		return -sample
	}
	return sample
}

// MulawEncode converts one PCM16 sample to a μ-law byte.
func MulawEncode(s int16) byte {
	var sign byte
	if s < 0 {
		sign = 0x80
		s = -s
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	exponent := byte(7)
	for mask := int16(0x4000); mask != 0 && s&mask == 0; mask >>= 1 {
		exponent--
	}

	mantissa := byte(s>>(exponent+3)) & 0x0F
	return ^(sign | exponent<<4 | mantissa)
}

// MulawToPCM decodes a μ-law payload to PCM16 samples.
func MulawToPCM(data []byte) []int16 {
	samples := make([]int16, len(data))
	for i, b := range data {
		samples[i] = MulawDecode(b)
	}
	return samples
}

// PCMToMulaw encodes PCM16 samples to a μ-law payload.
func PCMToMulaw(samples []int16) []byte {
	data := make([]byte, len(samples))
	for i, s := range samples {
		data[i] = MulawEncode(s)
	}
	return data
}
