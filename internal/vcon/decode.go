package vcon

import (
	"encoding/base64"
	"strings"
)

const (
	EncodingBase64URL = "base64url"
	EncodingBase64    = "base64"
)

// DecodeError reports a dialog body that could not be decoded under any
// attempted encoding.
type DecodeError struct {
	Encoding string
	Err      error
}

func (e *DecodeError) Error() string {
	enc := e.Encoding
	if enc == "" {
		enc = "unspecified"
	}
	return "decode body (encoding " + enc + "): " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeBody decodes a dialog body. base64url input may omit padding.
// With no recognised encoding, standard base64 is tried first and then
// padded base64url; the first full decode wins. Any input that happens to
// be valid base64 is accepted, so this path cannot detect a wrong encoding.
func DecodeBody(body, encoding string) ([]byte, error) {
	switch encoding {
	case EncodingBase64URL:
		b, err := base64.URLEncoding.DecodeString(pad(body))
		if err != nil {
			return nil, &DecodeError{Encoding: encoding, Err: err}
		}
		return b, nil
	case EncodingBase64:
		b, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, &DecodeError{Encoding: encoding, Err: err}
		}
		return b, nil
	}

	if b, err := base64.StdEncoding.DecodeString(body); err == nil {
		return b, nil
	}
	b, err := base64.URLEncoding.DecodeString(pad(body))
	if err != nil {
		return nil, &DecodeError{Encoding: encoding, Err: err}
	}
	return b, nil
}

func pad(s string) string {
	if r := len(s) % 4; r != 0 {
		return s + strings.Repeat("=", 4-r)
	}
	return s
}
