package services

import "errors"

var (
	// ErrInvalidInput indicates validation failures on service commands.
	ErrInvalidInput = errors.New("tickets: invalid input")
	// ErrTicketNotFound indicates a ticket could not be located.
	ErrTicketNotFound = errors.New("tickets: not found")
	// ErrGenerationFailed indicates the metadata model produced no usable result.
	ErrGenerationFailed = errors.New("tickets: generation failed")
	// ErrPersistenceUnavailable indicates the backing store could not be reached.
	ErrPersistenceUnavailable = errors.New("tickets: persistence unavailable")
	// ErrVerificationFailed indicates the payment session could not be verified.
	ErrVerificationFailed = errors.New("tickets: payment verification failed")
	// ErrTicketLocked indicates a paid-only operation on an unpaid ticket.
	ErrTicketLocked = errors.New("tickets: ticket is locked")
	// ErrSessionNotFound indicates an unknown view session id.
	ErrSessionNotFound = errors.New("tickets: view session not found")
)
