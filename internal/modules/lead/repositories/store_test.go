package repositories

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/apperrors"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
)

func mockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestUserGetByIDNotFound(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(`SELECT (.+) FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserGetByPhoneFound(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewUserRepo(db)

	id := uuid.New()
	phone := "+6281234567890"
	name := gofakeit.Name()
	mock.ExpectQuery(`SELECT (.+) FROM "users"`).
		WithArgs(phone, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "phone", "full_name"}).
			AddRow(id, phone, name))

	user, err := repo.GetByPhone(context.Background(), phone)
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	require.NotNil(t, user.Phone)
	assert.Equal(t, phone, *user.Phone)
	assert.Equal(t, name, user.FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreateNeedsContactChannel(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewUserRepo(db)

	// No SQL expected: the check fails before any query runs.
	err := repo.Create(context.Background(), &models.User{FullName: gofakeit.Name()})
	require.Error(t, err)
	assert.True(t, apperrors.IsConstraintViolation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageGetByExternalIDNotFound(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectQuery(`SELECT (.+) FROM "messages"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByExternalID(context.Background(), "wamid.UNKNOWN")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMeetingListTodayQueriesDayWindow(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewMeetingRepo(db)

	id := uuid.New()
	mock.ExpectQuery(`SELECT (.+) FROM "meetings"`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), models.MeetingCancelled).
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject", "status"}).
			AddRow(id, "Demo call", models.MeetingScheduled))

	meetings, err := repo.ListToday(context.Background(), time.UTC)
	require.NoError(t, err)
	require.Len(t, meetings, 1)
	assert.Equal(t, id, meetings[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMeetingActiveByExternalNotFound(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewMeetingRepo(db)

	mock.ExpectQuery(`SELECT (.+) FROM "meetings"`).
		WithArgs("AAMkUnknown", models.MeetingCancelled, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.ActiveByExternal(context.Background(), "AAMkUnknown")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"record not found", gorm.ErrRecordNotFound, apperrors.ErrNotFound},
		{"duplicate key", gorm.ErrDuplicatedKey, apperrors.ErrConstraintViolation},
		{"foreign key", gorm.ErrForeignKeyViolated, apperrors.ErrConstraintViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translateError(tt.in, "thing"), tt.want)
		})
	}

	// Unknown errors pass through untranslated.
	plain := fmt.Errorf("connection reset")
	assert.Equal(t, plain, translateError(plain, "thing"))
}
