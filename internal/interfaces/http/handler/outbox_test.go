package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/returns/internal/application/event"
	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	infraevent "github.com/erp/returns/internal/infrastructure/event"
	"github.com/erp/returns/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type outboxFixture struct {
	repo   shared.OutboxRepository
	router *gin.Engine
	woken  int
}

func newOutboxFixture(t *testing.T) *outboxFixture {
	t.Helper()
	clock := shared.NewManualClock(testEpoch)
	f := &outboxFixture{repo: infraevent.NewInMemoryOutboxRepository(clock)}
	h := NewOutboxHandler(event.NewOutboxService(f.repo, clock, func() { f.woken++ }, zap.NewNop()))

	f.router = gin.New()
	g := f.router.Group("/system/outbox")
	g.GET("/dead", h.ListDeadLetters)
	g.POST("/dead/retry-all", h.RetryAllDeadEntries)
	g.GET("/stats", h.GetStats)
	g.GET("/:id", h.GetEntry)
	g.POST("/:id/retry", h.RetryDeadEntry)
	return f
}

func (f *outboxFixture) save(t *testing.T, dead bool) *shared.OutboxEntry {
	t.Helper()
	ev := shared.NewBaseDomainEvent(returns.EventTypeRefundRequested, returns.AggregateTypeReturnRequest, uuid.New(), uuid.New(), testEpoch)
	entry := shared.NewOutboxEntry(&ev, []byte(`{}`), testEpoch)
	if dead {
		entry.MaxRetries = 1
		entry.MarkFailed("settlement: 503", testEpoch)
	}
	require.NoError(t, f.repo.Save(context.Background(), entry))
	return entry
}

func (f *outboxFixture) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestOutboxHandler_ListDeadLetters(t *testing.T) {
	f := newOutboxFixture(t)
	dead := f.save(t, true)
	f.save(t, false)

	w := f.do(http.MethodGet, "/system/outbox/dead?page=1&page_size=10")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []OutboxEntryResponse
	env := decode(t, w, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, dead.ID.String(), entries[0].ID)
	assert.Equal(t, dead.AggregateID.String(), entries[0].ReturnRequestID)
	assert.Equal(t, "settlement: 503", entries[0].LastError)
	assert.Equal(t, int64(1), env.Meta.Total)

	w = f.do(http.MethodGet, "/system/outbox/dead?page_size=500")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOutboxHandler_RetryDeadEntry(t *testing.T) {
	f := newOutboxFixture(t)
	dead := f.save(t, true)
	pending := f.save(t, false)

	w := f.do(http.MethodPost, "/system/outbox/"+dead.ID.String()+"/retry")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var entry OutboxEntryResponse
	decode(t, w, &entry)
	assert.Equal(t, string(shared.OutboxStatusPending), entry.Status)
	assert.Equal(t, 1, f.woken)

	w = f.do(http.MethodPost, "/system/outbox/"+pending.ID.String()+"/retry")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidState, decode(t, w, nil).Error.Code)

	w = f.do(http.MethodPost, "/system/outbox/"+uuid.NewString()+"/retry")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOutboxHandler_RetryAllAndStats(t *testing.T) {
	f := newOutboxFixture(t)
	f.save(t, true)
	f.save(t, true)
	f.save(t, false)

	w := f.do(http.MethodGet, "/system/outbox/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var stats event.OutboxStatsDTO
	decode(t, w, &stats)
	assert.Equal(t, int64(2), stats.Dead)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(3), stats.Total)

	w = f.do(http.MethodPost, "/system/outbox/dead/retry-all")
	require.Equal(t, http.StatusOK, w.Code)
	var count CountData
	decode(t, w, &count)
	assert.Equal(t, int64(2), count.Count)

	w = f.do(http.MethodGet, "/system/outbox/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, w.Code)
}
