package service

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vitalink-monitor/internal/models"
	"vitalink-monitor/internal/repository"
)

func newWriterService(t *testing.T, buffer int) (*MonitorService, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	return &MonitorService{
		logger:  logger,
		repo:    repository.NewAlertEventsRepository(db, 1000, logger),
		alertCh: make(chan *models.AlertEvent, buffer),
	}, mock
}

func testEvent(subjectID string) *models.AlertEvent {
	bpm := 130
	reading := models.Reading{
		SubjectID:  subjectID,
		BPM:        &bpm,
		ObservedAt: time.Now(),
	}
	result := models.ClassificationResult{
		Status:   models.StatusAlert,
		Warnings: []models.WarningKind{models.WarningAbnormalHeartRate},
	}
	return models.NewAlertEvent("e1", reading, result, models.ActivityResting)
}

func TestAlertWriter_PersistsSubmittedEvents(t *testing.T) {
	s, mock := newWriterService(t, 4)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO alert_events`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`DELETE FROM alert_events`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	s.writerWG.Add(1)
	go s.alertWriter()

	s.Submit(testEvent("u1"))

	close(s.alertCh)
	s.writerWG.Wait()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertWriter_PersistFailureDoesNotStopDraining(t *testing.T) {
	s, mock := newWriterService(t, 4)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO alert_events`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO alert_events`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`DELETE FROM alert_events`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	s.Submit(testEvent("u1"))
	s.Submit(testEvent("u2"))

	s.writerWG.Add(1)
	go s.alertWriter()

	close(s.alertCh)
	s.writerWG.Wait()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmit_AfterQueueClosedIsDropped(t *testing.T) {
	s, mock := newWriterService(t, 4)

	s.writerWG.Add(1)
	go s.alertWriter()

	s.closeAlertQueue()
	s.writerWG.Wait()

	// 在途的 MQTT 回调可能在停机后才到达 Submit：丢弃而不是 panic
	require.NotPanics(t, func() {
		s.Submit(testEvent("u1"))
	})

	// 幂等：重复关闭也不得 panic
	require.NotPanics(t, s.closeAlertQueue)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmit_DropsWhenQueueFull(t *testing.T) {
	s, _ := newWriterService(t, 1)

	// 没有消费协程：第二条应当被丢弃而不是阻塞
	s.Submit(testEvent("u1"))

	done := make(chan struct{})
	go func() {
		s.Submit(testEvent("u2"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}

	assert.Len(t, s.alertCh, 1)
}
