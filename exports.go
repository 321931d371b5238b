package tally

import (
	"github.com/tallyhq/tally/id"
	"github.com/tallyhq/tally/types"
)

// Re-export common types for convenience so users don't have to import the
// id and types packages.

// ID is the primary identifier type for all Tally entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// Entity is re-exported from the types package.
type Entity = types.Entity

// Re-export ID constructors and parsers.
var (
	NewAccountID = id.NewAccountID
	NewEventID   = id.NewEventID
	ParseID      = id.Parse
	MustParseID  = id.MustParse
)

// Re-export amount helpers.
var (
	FormatAmount = types.FormatAmount
	ParseAmount  = types.ParseAmount
	MustAmount   = types.MustAmount
)
