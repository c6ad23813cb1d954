package cache

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to errors returned by this package.
const (
	CodeUnknownPersistKey = "UNKNOWN_PERSIST_KEY"
	CodeInvalidConfig     = "INVALID_CONFIG"
	CodeInvalidSchema     = "INVALID_SCHEMA"
	CodeInvalidMessage    = "INVALID_SYNC_MESSAGE"
	CodeUnknownTier       = "UNKNOWN_TIER"
	CodeInvalidValue      = "INVALID_PERSIST_VALUE"
)

func unknownPersistKey(key string) error {
	return goerrors.New(fmt.Sprintf("unknown persist cache key %q", key), goerrors.CategoryValidation).
		WithTextCode(CodeUnknownPersistKey).
		WithMetadata(map[string]any{"key": key})
}

func invalidConfig(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid cache config").
		WithTextCode(CodeInvalidConfig)
}

func invalidSchema(key string, err error) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, fmt.Sprintf("invalid default for persist key %q", key)).
		WithTextCode(CodeInvalidSchema).
		WithMetadata(map[string]any{"key": key})
}

func invalidValue(key string, err error) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, fmt.Sprintf("value for persist key %q cannot be encoded", key)).
		WithTextCode(CodeInvalidValue).
		WithMetadata(map[string]any{"key": key})
}

func invalidMessage(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid cache sync message").
		WithTextCode(CodeInvalidMessage)
}

func unknownTier(t Tier) error {
	return goerrors.New(fmt.Sprintf("unknown cache tier %d", int(t)), goerrors.CategoryValidation).
		WithTextCode(CodeUnknownTier)
}

// IsUnknownPersistKey reports whether err was caused by a key outside the
// persist schema.
func IsUnknownPersistKey(err error) bool {
	return hasTextCode(err, CodeUnknownPersistKey)
}

// IsInvalidConfig reports whether err comes from Config validation.
func IsInvalidConfig(err error) bool {
	return hasTextCode(err, CodeInvalidConfig)
}

// IsInvalidValue reports whether a persistent value was rejected because it
// cannot be stored.
func IsInvalidValue(err error) bool {
	return hasTextCode(err, CodeInvalidValue)
}

// IsInvalidMessage reports whether err comes from Message validation.
func IsInvalidMessage(err error) bool {
	return hasTextCode(err, CodeInvalidMessage)
}

func hasTextCode(err error, code string) bool {
	var e *goerrors.Error
	return errors.As(err, &e) && e.TextCode == code
}
