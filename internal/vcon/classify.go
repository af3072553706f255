package vcon

import "github.com/snarg/vcon-wtf/internal/audio"

// TypeRecording is the dialog type that carries audio.
const TypeRecording = "recording"

// IsEligible reports whether a dialog entry is an audio recording.
func IsEligible(d Dialog) bool {
	return d.Type == TypeRecording && audio.IsAudioMediatype(d.MediaType)
}

// HasBody reports whether the entry carries an inline payload.
func (dl Dialog) HasBody() bool { return dl.Body != "" }
