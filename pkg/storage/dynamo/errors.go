package dynamo

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/3leaps/dynastore/pkg/storage"
)

// asAny is a local alias for errors.As with a friendlier call shape.
func asAny(err error, target any) bool {
	return errors.As(err, target)
}

// isThrottle reports whether the error is a capacity rejection that the
// retry loop should absorb.
func isThrottle(err error) bool {
	var throughput *types.ProvisionedThroughputExceededException
	var limit *types.LimitExceededException
	if errors.As(err, &throughput) || errors.As(err, &limit) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "RequestLimitExceeded", "ProvisionedThroughputExceededException":
			return true
		}
	}
	return false
}

// wrapError converts DynamoDB errors to storage errors with appropriate
// sentinel errors.
func (s *Store) wrapError(op, table string, key storage.Record, err error) error {
	wrapped := &storage.StorageError{
		Op:    op,
		Table: table,
		Err:   err,
	}
	if key != nil {
		wrapped.Key = renderKey(key)
	}

	var condFailed *types.ConditionalCheckFailedException
	var notFound *types.ResourceNotFoundException

	switch {
	case errors.As(err, &condFailed):
		wrapped.Err = storage.ErrConditionFailed
		return wrapped
	case errors.As(err, &notFound):
		wrapped.Err = storage.ErrTableNotFound
		return wrapped
	case isThrottle(err):
		wrapped.Err = storage.ErrThrottled
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ConditionalCheckFailedException":
			wrapped.Err = storage.ErrConditionFailed
		case "ResourceNotFoundException":
			wrapped.Err = storage.ErrTableNotFound
		case "AccessDeniedException", "AccessDenied", "UnrecognizedClientException":
			wrapped.Err = storage.ErrAccessDenied
		}
	}
	return wrapped
}
