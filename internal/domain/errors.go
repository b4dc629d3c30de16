package domain

import "errors"

var (
	// ErrNotFound is returned when an entity is not in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned on unique-constraint violations, most
	// importantly a duplicate original URL.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidLink is returned when creating a link with missing fields.
	ErrInvalidLink = errors.New("invalid link")
)
