package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/invoicereminder/internal/app/dispatch"
)

type stubSweeper struct {
	report dispatch.TickReport
	err    error
	calls  int
	ctxErr error
}

func (s *stubSweeper) Tick(ctx context.Context) (dispatch.TickReport, error) {
	s.calls++
	s.ctxErr = ctx.Err()
	return s.report, s.err
}

func runDispatch(t *testing.T, handler *ReminderHandler) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request, _ = http.NewRequest(http.MethodPost, "/api/reminders/dispatch", nil)
	handler.Dispatch(ctx)
	return recorder
}

func TestDispatchReportsSweep(t *testing.T) {
	sweeper := &stubSweeper{report: dispatch.TickReport{Due: 3, Sent: 2, Failed: 1}}
	recorder := runDispatch(t, NewReminderHandler(nil, sweeper, nil))

	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	require.Equal(t, 1, sweeper.calls)
	require.Contains(t, recorder.Body.String(), `"sent":2`)
	require.NotContains(t, recorder.Body.String(), `"error"`)
}

func TestDispatchIncludesPartialFailure(t *testing.T) {
	sweeper := &stubSweeper{report: dispatch.TickReport{Due: 1, Failed: 1}, err: errors.New("reminder r1: smtp down")}
	recorder := runDispatch(t, NewReminderHandler(nil, sweeper, nil))

	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	require.Contains(t, recorder.Body.String(), "smtp down")
}

func TestDispatchRejectsOverlappingSweep(t *testing.T) {
	sweeper := &stubSweeper{err: dispatch.ErrTickInProgress}
	recorder := runDispatch(t, NewReminderHandler(nil, sweeper, nil))

	require.Equal(t, http.StatusConflict, recorder.Code, recorder.Body.String())
	require.Contains(t, recorder.Body.String(), "reminders.sweep_in_progress")
}

func TestDispatchWithoutSweeper(t *testing.T) {
	recorder := runDispatch(t, NewReminderHandler(nil, nil, nil))

	require.Equal(t, http.StatusConflict, recorder.Code, recorder.Body.String())
	require.Contains(t, recorder.Body.String(), "reminders.scheduler_disabled")
}

func TestDispatchSurvivesClientDisconnect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sweeper := &stubSweeper{report: dispatch.TickReport{Due: 1, Sent: 1}}
	handler := NewReminderHandler(nil, sweeper, nil)

	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()

	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request, _ = http.NewRequestWithContext(reqCtx, http.MethodPost, "/api/reminders/dispatch", nil)
	handler.Dispatch(ctx)

	require.Equal(t, 1, sweeper.calls)
	require.NoError(t, sweeper.ctxErr)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
}

func TestDispatchAfterStop(t *testing.T) {
	sweeper := &stubSweeper{err: dispatch.ErrStopped}
	recorder := runDispatch(t, NewReminderHandler(nil, sweeper, nil))

	require.Equal(t, http.StatusConflict, recorder.Code, recorder.Body.String())
	require.Contains(t, recorder.Body.String(), "reminders.scheduler_disabled")
}
