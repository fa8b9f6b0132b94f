package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"chat-sync/internal/mocks"
	"chat-sync/internal/remoteconfig"
	"chat-sync/internal/repositories"
	"chat-sync/internal/telemetry"
)

func TestConfigRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := new(mocks.ConfigRepositoryMock)
	repo.On("GetValue", mock.Anything, remoteconfig.KeyMessageLengthLimit).Return("", repositories.ErrConfigNotFound).Once()
	repo.On("SetValue", mock.Anything, remoteconfig.KeyMessageLengthLimit, "200").Return(nil).Once()
	repo.On("GetValue", mock.Anything, remoteconfig.KeyMessageLengthLimit).Return("200", nil).Once()
	repo.On("GetValue", mock.Anything, "nope").Return("", repositories.ErrConfigNotFound).Once()

	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, "audit.chat-sync", mock.AnythingOfType("telemetry.AuditEnvelope"), mock.Anything).Return(nil).Once()
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat-sync", "chat-sync", "test", zerolog.Nop())

	h := NewConfigHandler(remoteconfig.NewProvider(repo, time.Hour, zerolog.Nop()), audit)
	r := gin.New()
	r.GET("/config/:key", h.GetValue)
	r.PUT("/config/:key", h.PutValue)

	get := func(key string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config/"+key, nil))
		return rec
	}

	rec := get(remoteconfig.KeyMessageLengthLimit)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"value":"1000"`)

	req := httptest.NewRequest(http.MethodPut, "/config/"+remoteconfig.KeyMessageLengthLimit, bytes.NewBufferString(`{"value":"200"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(remoteconfig.KeyMessageLengthLimit)
	assert.Contains(t, rec.Body.String(), `"value":"200"`)

	assert.Equal(t, http.StatusNotFound, get("nope").Code)

	req = httptest.NewRequest(http.MethodPut, "/config/x", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}
