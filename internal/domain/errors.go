package domain

import "fmt"

// TransientSourceError marks a feed failure expected to clear on the next
// cycle: network errors, timeouts, rate limiting and upstream 5xx responses.
type TransientSourceError struct {
	Source string
	Err    error
}

func (e *TransientSourceError) Error() string {
	return fmt.Sprintf("transient source error (%s): %v", e.Source, e.Err)
}

func (e *TransientSourceError) Unwrap() error { return e.Err }

// MalformedPayloadError marks feed data with an unexpected shape. When Record
// is set only that record is affected; siblings from the same feed proceed.
type MalformedPayloadError struct {
	Source string
	Record string
	Err    error
}

func (e *MalformedPayloadError) Error() string {
	if e.Record != "" {
		return fmt.Sprintf("malformed payload (%s, record %s): %v", e.Source, e.Record, e.Err)
	}
	return fmt.Sprintf("malformed payload (%s): %v", e.Source, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed dedup lookup or store write.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error (%s %s): %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ConfigurationError reports a component that cannot run with the supplied
// settings, typically missing credentials or endpoints.
type ConfigurationError struct {
	Component string
	Err       error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error (%s): %v", e.Component, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// AlertMatchError reports a failed alert cycle stage (subscriber load or publish).
type AlertMatchError struct {
	Stage string
	Err   error
}

func (e *AlertMatchError) Error() string {
	return fmt.Sprintf("alert match error (%s): %v", e.Stage, e.Err)
}

func (e *AlertMatchError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientSourceError for source.
func Transient(source string, err error) error {
	return &TransientSourceError{Source: source, Err: err}
}

// Malformed wraps err as a MalformedPayloadError for one record of source.
func Malformed(source, record string, err error) error {
	return &MalformedPayloadError{Source: source, Record: record, Err: err}
}
