package group

// DecodeADPCM decodes GameCube/N64-style 4-bit DSP-ADPCM sample data into
// signed 16-bit PCM (spec §4.1 "ADPCM parameters"). Each 8-byte frame holds
// one header byte (predictor/scale nibbles) followed by 14 nibble samples.
// parms.Hist1/Hist2 seed the predictor history; parms is taken by value,
// so the history reached at the end of decoding is not written back.
func DecodeADPCM(data []byte, parms ADPCMParms, numSamples int) []int16 {
	out := make([]int16, 0, numSamples)
	hist1, hist2 := int32(parms.Hist1), int32(parms.Hist2)

	frameBytes := int(parms.BytesPerFrame)
	if frameBytes <= 0 {
		frameBytes = 8
	}

	for frameStart := 0; frameStart+frameBytes <= len(data) && len(out) < numSamples; frameStart += frameBytes {
		header := data[frameStart]
		predictor := (header >> 4) & 0xF
		scale := int32(1) << (header & 0xF)
		if int(predictor) >= 8 {
			predictor = 0
		}
		coef1 := int32(parms.Coefs[predictor][0])
		coef2 := int32(parms.Coefs[predictor][1])

		for i := 1; i < frameBytes && len(out) < numSamples; i++ {
			b := data[frameStart+i]
			for _, nib := range [2]byte{b >> 4, b & 0xF} {
				if len(out) >= numSamples {
					break
				}
				sample := int32(int8(nib<<4)) >> 4 // sign-extend low nibble
				sample = (sample * scale) + ((coef1*hist1 + coef2*hist2) >> 11)
				if sample > 32767 {
					sample = 32767
				} else if sample < -32768 {
					sample = -32768
				}
				hist2 = hist1
				hist1 = sample
				out = append(out, int16(sample))
			}
		}
	}

	return out
}
