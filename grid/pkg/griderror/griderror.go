// Package griderror defines the tagged errors returned by grid operations.
package griderror

import (
	"errors"
)

var (
	// Validation
	ErrInvalidDimensions   = errors.New("invalid parcel dimensions")
	ErrOutOfBounds         = errors.New("block coordinates out of bounds")
	ErrBlockAlreadyClaimed = errors.New("block is already claimed")
	ErrRingLocked          = errors.New("block is in a locked ring")
	ErrCollectionNotSet    = errors.New("collection not set")
	ErrAssetMismatch       = errors.New("asset does not match parcel")
	ErrInvalidCollection   = errors.New("invalid collection")
	ErrInvalidConfig       = errors.New("invalid config")

	// Authorization
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotOwner     = errors.New("caller does not own this parcel")

	// Arithmetic
	ErrOverflow = errors.New("arithmetic overflow")

	// Economic state
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrNothingToClaim      = errors.New("nothing to claim")
	ErrSeedingDisabled     = errors.New("seeding is disabled")
	ErrInvalidRewardPool   = errors.New("invalid reward pool")

	// External
	ErrInvalidCoreAsset = errors.New("invalid core asset data")

	// Lifecycle and lookup
	ErrNotInitialized     = errors.New("grid is not initialized")
	ErrAlreadyInitialized = errors.New("grid is already initialized")
	ErrParcelNotFound     = errors.New("parcel not found")
)

// Class groups error tags by how callers should react to them.
type Class int

const (
	ClassUnknown Class = iota
	ClassValidation
	ClassAuthorization
	ClassArithmetic
	ClassEconomic
	ClassExternal
	ClassLifecycle
	ClassNotFound
)

type tag struct {
	err   error
	code  string
	class Class
}

var tags = []tag{
	{ErrInvalidDimensions, "InvalidDimensions", ClassValidation},
	{ErrOutOfBounds, "OutOfBounds", ClassValidation},
	{ErrBlockAlreadyClaimed, "BlockAlreadyClaimed", ClassValidation},
	{ErrRingLocked, "RingLocked", ClassValidation},
	{ErrCollectionNotSet, "CollectionNotSet", ClassValidation},
	{ErrAssetMismatch, "AssetMismatch", ClassValidation},
	{ErrInvalidCollection, "InvalidCollection", ClassValidation},
	{ErrInvalidConfig, "InvalidConfig", ClassValidation},
	{ErrUnauthorized, "Unauthorized", ClassAuthorization},
	{ErrNotOwner, "NotOwner", ClassAuthorization},
	{ErrOverflow, "Overflow", ClassArithmetic},
	{ErrInsufficientBalance, "InsufficientBalance", ClassEconomic},
	{ErrNothingToClaim, "NothingToClaim", ClassEconomic},
	{ErrSeedingDisabled, "SeedingDisabled", ClassEconomic},
	{ErrInvalidRewardPool, "InvalidRewardPool", ClassEconomic},
	{ErrInvalidCoreAsset, "InvalidCoreAsset", ClassExternal},
	{ErrNotInitialized, "NotInitialized", ClassLifecycle},
	{ErrAlreadyInitialized, "AlreadyInitialized", ClassLifecycle},
	{ErrParcelNotFound, "ParcelNotFound", ClassNotFound},
}

// Code returns the tag of the first grid error found in err's chain, or "Internal"
// when err carries none.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, t := range tags {
		if errors.Is(err, t.err) {
			return t.code
		}
	}
	return "Internal"
}

// Classify returns the class of the first grid error found in err's chain.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	for _, t := range tags {
		if errors.Is(err, t.err) {
			return t.class
		}
	}
	return ClassUnknown
}
