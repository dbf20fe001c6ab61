package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidManifest   = errors.New("invalid manifest")
	ErrAlreadySigned     = errors.New("manifest already signed")
	ErrDuplicateKey      = errors.New("duplicate idempotency key")
	ErrInvalidTransition = errors.New("invalid job state transition")
	ErrNotFound          = errors.New("not found")
	ErrAnchorUnavailable = errors.New("anchor unavailable")
	ErrPolicyDenied      = errors.New("policy denied")
)

// EncodingError reports a manifest value that has no canonical representation.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	if e.Err == nil {
		return "encoding error"
	}
	return fmt.Sprintf("encoding error: %v", e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// KeyError reports malformed, unsupported or mismatched key material.
type KeyError struct {
	Err error
}

func (e *KeyError) Error() string {
	if e.Err == nil {
		return "key error"
	}
	return fmt.Sprintf("key error: %v", e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

func IsEncodingError(err error) bool {
	var target *EncodingError
	return errors.As(err, &target)
}

func IsKeyError(err error) bool {
	var target *KeyError
	return errors.As(err, &target)
}
