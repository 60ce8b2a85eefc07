package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

const (
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer = 1000
	ErrInvalidParams  = 1001
	ErrNotFound       = 1002
	ErrUnauthorized   = 1003
	ErrConflict       = 1005
	ErrBadRequest     = 1007
	ErrServiceUnavail = 1008

	// Conversation errors (6000-6999)
	ErrConversationNotFound = 6000
	ErrPersistenceFailed    = 6001
	ErrInvalidRole          = 6002
	ErrSaveInProgress       = 6003
	ErrEmptyContent         = 6004

	// Quiz errors (7000-7999)
	ErrQuestionNotFound   = 7000
	ErrInvalidAnswerKey   = 7001
	ErrAnswerIndexRange   = 7002
	ErrProviderFailed     = 7003
	ErrMalformedResponse  = 7004
	ErrEmptyQuestion      = 7005
	ErrUnknownProvider    = 7006
	ErrNoProvidersEnabled = 7007
)

var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	ErrInternalServer: {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:  {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:       {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrUnauthorized:   {ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	ErrConflict:       {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrBadRequest:     {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail: {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	ErrConversationNotFound: {ErrConversationNotFound, http.StatusNotFound, "Conversation not found"},
	ErrPersistenceFailed:    {ErrPersistenceFailed, http.StatusBadGateway, "Persistence failed"},
	ErrInvalidRole:          {ErrInvalidRole, http.StatusBadRequest, "Invalid message role"},
	ErrSaveInProgress:       {ErrSaveInProgress, http.StatusConflict, "Conversation save already in progress"},
	ErrEmptyContent:         {ErrEmptyContent, http.StatusBadRequest, "Message content is empty"},

	ErrQuestionNotFound:   {ErrQuestionNotFound, http.StatusNotFound, "Question not found"},
	ErrInvalidAnswerKey:   {ErrInvalidAnswerKey, http.StatusBadRequest, "Answer key must be empty or a single letter A-Z"},
	ErrAnswerIndexRange:   {ErrAnswerIndexRange, http.StatusBadRequest, "Answer index out of range"},
	ErrProviderFailed:     {ErrProviderFailed, http.StatusBadGateway, "Provider call failed"},
	ErrMalformedResponse:  {ErrMalformedResponse, http.StatusBadGateway, "Malformed provider response"},
	ErrEmptyQuestion:      {ErrEmptyQuestion, http.StatusBadRequest, "Question text is empty"},
	ErrUnknownProvider:    {ErrUnknownProvider, http.StatusBadRequest, "Unknown provider"},
	ErrNoProvidersEnabled: {ErrNoProvidersEnabled, http.StatusServiceUnavailable, "No providers configured"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsClientError checks if the code represents a client error (4xx)
func IsClientError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
