package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/pathweaver/pathweaver/internal/pkg/errcode"
)

func TestErrorSetsStatusAndEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		code       int
		wantStatus int
	}{
		{errcode.ErrUnauthorized, http.StatusUnauthorized},
		{errcode.ErrNotFound, http.StatusNotFound},
		{errcode.ErrEmptyResult, http.StatusNotFound},
		{errcode.ErrInvalid, http.StatusBadRequest},
		{errcode.ErrTooMany, http.StatusTooManyRequests},
		{errcode.ErrCircuitOpen, http.StatusServiceUnavailable},
		{errcode.ErrPersistence, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		Error(c, tc.code, "boom")
		require.Equal(t, tc.wantStatus, w.Code, "errcode %d", tc.code)

		var envelope struct {
			Code    uint32 `json:"code"`
			Message string `json:"message"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
		require.Equal(t, uint32(tc.code), envelope.Code)
		require.Equal(t, "boom", envelope.Message)
	}
}

func TestSuccessWrapsData(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Success(c, gin.H{"path_id": "p1"})
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Code uint32 `json:"code"`
		Data struct {
			PathID string `json:"path_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, uint32(0), envelope.Code)
	require.Equal(t, "p1", envelope.Data.PathID)
}
