package chat

import (
	"errors"
	"fmt"
)

// Base classes of failure surfaced to the sender. Specific errors wrap one of them so
// callers can branch with errors.Is.
var (
	ErrValidation = errors.New("chat: validation failed")
	ErrNotFound   = errors.New("chat: not found")
	ErrPermission = errors.New("chat: permission denied")
)

var (
	ErrEmptyText            = fmt.Errorf("%w: text is required", ErrValidation)
	ErrTextTooLong          = fmt.Errorf("%w: text is too long", ErrValidation)
	ErrSelfContact          = fmt.Errorf("%w: cannot start a conversation with yourself", ErrValidation)
	ErrListingRequired      = fmt.Errorf("%w: listing id is required", ErrValidation)
	ErrParticipantRequired  = fmt.Errorf("%w: buyer and seller are required", ErrValidation)
	ErrConversationNotFound = fmt.Errorf("%w: conversation", ErrNotFound)
	ErrListingNotFound      = fmt.Errorf("%w: listing", ErrNotFound)
	ErrNotParticipant       = fmt.Errorf("%w: not a conversation participant", ErrPermission)
)

// ErrConcurrentUpdate is returned by stores when a compare-and-swap on the conversation
// sequence lost against another writer. Callers retry the append.
var ErrConcurrentUpdate = errors.New("chat: concurrent update detected")
