package store

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"laundry-fleet-backend/internal/model"
)

// Any matches any SQL argument value.
type Any struct{}

func (Any) Match(v driver.Value) bool {
	return true
}

// newTestDB creates a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestGormStore_InsertMachineEvent(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "machine_events"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	event := &model.MachineEvent{
		Timestamp:      time.Now(),
		SiteID:         "SITE-A",
		VendorDeviceID: "vnd-1",
		LocalID:        "w1",
		AgentID:        "laundry-1",
		DeviceType:     "washer",
		StatusID:       "IN_USE",
		Source:         model.SourceRestSnapshot,
	}
	require.NoError(t, s.InsertMachineEvent(context.Background(), event))
	assert.Equal(t, int64(1), event.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_GetLastKnownStatus(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "status_id" FROM "machine_events"`)).
		WithArgs("vnd-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"status_id"}).AddRow("AVAILABLE"))

	status, err := s.GetLastKnownStatus(context.Background(), "vnd-1")
	require.NoError(t, err)
	assert.Equal(t, "AVAILABLE", status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_GetLastKnownStatus_NoHistory(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "status_id" FROM "machine_events"`)).
		WithArgs("vnd-new", 1).
		WillReturnRows(sqlmock.NewRows([]string{"status_id"}))

	status, err := s.GetLastKnownStatus(context.Background(), "vnd-new")
	require.NoError(t, err)
	assert.Equal(t, "", status, "a device with no history yields an empty baseline, not an error")
}

func TestGormStore_ListMachineEvents_Filters(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "machine_events" WHERE agent_id = $1 AND vendor_device_id = $2 AND timestamp >= $3 ORDER BY timestamp DESC LIMIT $4`)).
		WithArgs("laundry-1", "vnd-1", Any{}, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "vendor_device_id", "status_id"}).
			AddRow(2, "vnd-1", "IN_USE").
			AddRow(1, "vnd-1", "AVAILABLE"))

	events, err := s.ListMachineEvents(context.Background(), EventFilter{
		AgentID:   "laundry-1",
		MachineID: "vnd-1",
		From:      now.Add(-time.Hour),
		Limit:     50,
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "IN_USE", events[0].StatusID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_ListMachineEvents_DefaultLimit(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "machine_events" ORDER BY timestamp DESC LIMIT $1`)).
		WithArgs(defaultEventLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.ListMachineEvents(context.Background(), EventFilter{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_SubscriptionsForMachine(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "push_subscriptions" WHERE vendor_device_id = $1`)).
		WithArgs("vnd-1").
		WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "vendor_device_id"}).
			AddRow("https://push.example/ep1", "key", "auth", "vnd-1"))

	subs, err := s.SubscriptionsForMachine(context.Background(), "vnd-1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "https://push.example/ep1", subs[0].Endpoint)
}
