package paypal

import (
	"errors"
	"fmt"
)

// Stage identifies which half of the verification pipeline produced an error.
type Stage string

const (
	// StageCertificate covers obtaining and trusting the signer's key.
	StageCertificate Stage = "certificate"
	// StageValidation covers checking the transmission signature itself.
	StageValidation Stage = "validation"
)

// Certificate-resolution failures.
var (
	ErrInvalidCertificateURL = errors.New("certificate url is not a paypal origin")
	ErrFetchCertificate      = errors.New("failed to fetch certificate")
	ErrPEMParse              = errors.New("failed to decode certificate pem")
	ErrX509Parse             = errors.New("failed to parse x509 certificate")
	ErrRSAKeyParse           = errors.New("failed to parse rsa public key")
)

// Validation failures.
var (
	ErrUnsupportedAuthAlgo      = errors.New("unsupported auth algorithm")
	ErrInvalidSignatureBase64   = errors.New("signature is not valid base64")
	ErrInvalidSignatureEncoding = errors.New("signature is empty")
)

// Error is the tagged failure returned by every verification entry point.
// Kind is one of the package sentinels, so errors.Is(err, ErrPEMParse) works
// on any error that came out of this package.
type Error struct {
	Stage  Stage
	Kind   error
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// StageOf reports the pipeline stage of err, if it came from this package.
func StageOf(err error) (Stage, bool) {
	var verr *Error
	if !errors.As(err, &verr) {
		return "", false
	}
	return verr.Stage, true
}

// KindOf returns the sentinel describing err, or nil if err is not a *Error.
func KindOf(err error) error {
	var verr *Error
	if !errors.As(err, &verr) {
		return nil
	}
	return verr.Kind
}

func certificateError(kind error, detail string, cause error) *Error {
	return &Error{Stage: StageCertificate, Kind: kind, Detail: detail, Err: cause}
}

func validationError(kind error, detail string, cause error) *Error {
	return &Error{Stage: StageValidation, Kind: kind, Detail: detail, Err: cause}
}
