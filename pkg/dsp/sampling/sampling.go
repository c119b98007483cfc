package sampling

// Frequencies are normalized against the sample rate so that the
// Nyquist frequency maps to 1.0; baud rates are normalized so that one
// symbol per sample maps to 1.0.

func NormFreq(sampRate, freq float64) float64 {
	return 2 * freq / sampRate
}

func AbsFreq(sampRate, norm float64) float64 {
	return norm * sampRate / 2
}

func NormBaud(sampRate, baud float64) float64 {
	return baud / sampRate
}

func AbsBaud(sampRate, norm float64) float64 {
	return norm * sampRate
}
