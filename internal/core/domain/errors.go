package domain

import "errors"

// Common domain errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInternalServer     = errors.New("internal server error")
	ErrDuplicateEntry     = errors.New("duplicate entry")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
)

// User / membership errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrPhoneTaken         = errors.New("phone number already registered")
	ErrEmailTaken         = errors.New("email already registered")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrGroupNotFound      = errors.New("group not found")
	ErrAlreadyMember      = errors.New("user is already a member of this group")
	ErrLastAdmin          = errors.New("group must retain at least one admin")
)

// Loan errors
var (
	ErrLoanNotFound       = errors.New("loan not found")
	ErrLoanNotUpdatable   = errors.New("loan not found or cannot be updated")
	ErrLoanNotApproved    = errors.New("loan is not in APPROVED status")
	ErrLoanNotActive      = errors.New("cannot record payment for this loan")
	ErrRestructureNotes   = errors.New("restructure notes are required")
	ErrNotMembershipOwner = errors.New("a member may only apply for themselves")
)

// Payment / gateway errors
var (
	ErrDuplicateReference   = errors.New("a payment with this reference code already exists")
	ErrContributionNotFound = errors.New("contribution not found")
	ErrPendingTxNotFound    = errors.New("pending gateway transaction not found")
	ErrPendingTxResolved    = errors.New("gateway transaction already resolved")
)
