package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("proposal: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("stage order: %w", ErrDuplicate), http.StatusConflict},
		{fmt.Errorf("group full: %w", ErrConflict), http.StatusConflict},
		{fmt.Errorf("agency_id: %w", ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("role: %w", ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("token: %w", ErrUnauthorized), http.StatusUnauthorized},
		{fmt.Errorf("stripe: %w", ErrUpstream), http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())

		var problem ProblemDetail
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
		assert.Equal(t, tc.status, problem.Status)
	}
}

func TestInternalErrorHidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("pq: password authentication failed"))

	assert.NotContains(t, rec.Body.String(), "password")
}

type createReq struct {
	Name  string `json:"name" validate:"required"`
	Count int    `json:"count" validate:"gte=1"`
}

func TestDecodeAndValidate(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"","count":0}`))
	var body createReq
	err := DecodeAndValidate(req, &body)
	require.Error(t, err)

	rec := httptest.NewRecorder()
	RespondError(rec, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var problem ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	assert.Equal(t, "required", problem.Errors["Name"])
	assert.Equal(t, "gte", problem.Errors["Count"])
}

func TestDecodeJSONMalformed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	var body createReq
	err := DecodeJSON(req, &body)
	require.ErrorIs(t, err, ErrValidation)
}
