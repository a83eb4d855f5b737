package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, statusFor(errMissingToken))
	assert.Equal(t, http.StatusUnauthorized, statusFor(fmt.Errorf("%w: expired", errInvalidToken)))
	assert.Equal(t, http.StatusBadRequest, statusFor(errUnsupportedProtocol))
	assert.Equal(t, http.StatusBadRequest, statusFor(errBadRequest))
	assert.Equal(t, http.StatusNotFound, statusFor(errUnknownTopic))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(errChannelClosed))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestSendError(t *testing.T) {
	rec := httptest.NewRecorder()
	sendError(rec, errMissingToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"missing token"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	sendError(rec, errors.New("db password is hunter2"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"internal error"}`, rec.Body.String())
}
