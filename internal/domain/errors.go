package domain

import "errors"

// Domain-specific errors for business logic validation.
var (
	// Distribution rule errors
	ErrRuleNotFound            = errors.New("distribution rule not found")
	ErrRuleExists              = errors.New("distribution rule already exists for workspace")
	ErrWorkspaceRequired       = errors.New("workspace id is required")
	ErrInvalidMaxConversations = errors.New("max conversations per agent must be at least 1")

	// Pending distribution errors
	ErrPendingNotFound = errors.New("pending distribution not found")

	// Auth errors
	ErrInvalidToken = errors.New("invalid authentication token")
)
