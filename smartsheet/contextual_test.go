package smartsheet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextualizingNamesTheSheet(t *testing.T) {
	cause := &HTTPError{StatusCode: 403, Status: "403 Forbidden", ErrorCode: 1004, Message: "You are not authorized to perform this action."}
	stub := &stubService{
		getSheet: func(string, int64) (*Sheet, error) { return nil, cause },
	}

	_, err := NewContextualizingService(stub).GetSheet(context.Background(), "Budget", 42)

	var itemErr *ItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, ItemSheet, itemErr.Type)
	assert.Equal(t, int64(42), itemErr.ID)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t,
		"Failed to get sheet with name [Budget] and id [42] due to HTTPError(403): smartsheet: 403 Forbidden (error code 1004): You are not authorized to perform this action.",
		err.Error())
}

func TestContextualizingNamesTheParentSheet(t *testing.T) {
	stub := &stubService{
		getAttachment: func(string, int64) (*Attachment, error) { return nil, unavailable() },
	}

	_, err := NewContextualizingService(stub).GetAttachment(context.Background(), "plan.pdf", 7, "Budget", 42)

	require.Error(t, err)
	assert.Equal(t,
		"Failed to get attachment with name [plan.pdf] and id [7] belonging to sheet [Budget] due to ServiceUnavailableError: smartsheet: service is not available: 503 Service Unavailable",
		err.Error())
	assert.True(t, IsServiceUnavailable(err))
}

func TestResilientServiceRetriesThroughContext(t *testing.T) {
	calls := 0
	stub := &stubService{
		getSheet: func(name string, id int64) (*Sheet, error) {
			calls++
			return nil, unavailable()
		},
	}
	svc := NewResilientService(stub, RetryOptions{MaxRetries: 2, Interval: time.Second, Clock: newInstantClock(), Logger: quietLogger()})

	_, err := svc.GetSheet(context.Background(), "Budget", 42)
	assert.Equal(t, 3, calls)

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	var itemErr *ItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, "Budget", itemErr.Name)
}

func TestContextualizingPassesIdentityThrough(t *testing.T) {
	svc := NewContextualizingService(&stubService{})
	member := svc.AssumeUser("bob@example.com")
	assert.Equal(t, "bob@example.com", member.AssumedUser())
	assert.Empty(t, svc.AssumedUser())
	assert.Equal(t, "stub-token", member.AccessToken())
}
