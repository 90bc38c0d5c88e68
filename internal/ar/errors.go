package ar

import "errors"

var (
	// ErrReceivableNotFound indicates the receivable does not exist for the company.
	ErrReceivableNotFound = errors.New("ar: receivable not found")
	// ErrPolicyNotFound indicates no late fee policy matches.
	ErrPolicyNotFound = errors.New("ar: late fee policy not found")
	// ErrAlreadySettled indicates the receivable is fully paid or written off.
	ErrAlreadySettled = errors.New("ar: receivable already settled")
	// ErrInvalidPayment indicates a non-positive or malformed payment amount.
	ErrInvalidPayment = errors.New("ar: invalid payment amount")
	// ErrInvalidPolicy indicates a malformed late fee policy definition.
	ErrInvalidPolicy = errors.New("ar: invalid late fee policy")
	// ErrDuplicateSource indicates a receivable already exists for the source record.
	ErrDuplicateSource = errors.New("ar: receivable already opened for record")
)
