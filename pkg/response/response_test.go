package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	appErrors "github.com/charlesng35/filehub/pkg/errors"
)

func recorded(fn func(c *gin.Context)) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	fn(c)
	return rec
}

func TestSuccessEnvelope(t *testing.T) {
	rec := recorded(func(c *gin.Context) {
		Success(c, http.StatusOK, map[string]string{"session_id": "abc"})
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Nil(t, body.Error)
}

func TestErrorEnvelopeFromAppError(t *testing.T) {
	rec := recorded(func(c *gin.Context) {
		Error(c, appErrors.ErrSeatsExhausted)
	})

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.NotNil(t, body.Error)
	require.Equal(t, appErrors.ErrSeatsExhausted.Code, body.Error.Code)
}

func TestErrorEnvelopeFromNil(t *testing.T) {
	rec := recorded(func(c *gin.Context) {
		Error(c, nil)
	})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
