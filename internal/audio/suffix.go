package audio

import (
	"mime"
	"path/filepath"
	"strings"
)

// DefaultSuffix is used when the mediatype is unknown. Most engines sniff
// the container anyway; the suffix only picks the first decoder they try.
const DefaultSuffix = ".wav"

var mediatypeSuffixes = map[string]string{
	"audio/wav":   ".wav",
	"audio/wave":  ".wav",
	"audio/x-wav": ".wav",
	"audio/mp3":   ".mp3",
	"audio/mpeg":  ".mp3",
	"audio/mp4":   ".mp4",
	"audio/x-m4a": ".m4a",
	"audio/m4a":   ".m4a",
	"audio/flac":  ".flac",
	"audio/ogg":   ".ogg",
	"audio/webm":  ".webm",
}

// SuffixForMediatype returns the file suffix (with leading dot) for a
// declared audio mediatype. Parameters such as "; codecs=opus" are ignored.
func SuffixForMediatype(mediatype string) string {
	mt := strings.ToLower(strings.TrimSpace(mediatype))
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}
	if s, ok := mediatypeSuffixes[mt]; ok {
		return s
	}
	return DefaultSuffix
}

// UploadSuffix derives the suffix for an uploaded file. The declared content
// type is consulted first; an extension on the uploaded filename wins.
func UploadSuffix(contentType, filename string) string {
	suffix := SuffixForMediatype(contentType)
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" && ext != "." {
		suffix = ext
	}
	return suffix
}

// IsAudioMediatype reports whether mediatype names an audio type.
func IsAudioMediatype(mediatype string) bool {
	return strings.HasPrefix(mediatype, "audio/")
}
