package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

type reminderRow struct {
	UserID               string `gorm:"primaryKey;size:64"`
	IntervalMinutes      int    `gorm:"not null"`
	IsActive             bool   `gorm:"index;not null;default:true"`
	LastNotificationSent *time.Time
	NextNotificationTime *time.Time
	TotalRemindersToday  int           `gorm:"not null;default:0"`
	LastResetDate        reminder.Date `gorm:"type:text;not null;default:''"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (reminderRow) TableName() string { return "water_reminders" }

type userRow struct {
	ID             string `gorm:"primaryKey;size:64"`
	Username       string `gorm:"size:128"`
	Email          string `gorm:"size:256"`
	Phone          string `gorm:"size:32"`
	PushEndpoint   string `gorm:"size:256"`
	TelegramChatID int64
	UpdatedAt      time.Time
}

func (userRow) TableName() string { return "users" }

type deliveryRow struct {
	ID            string    `gorm:"primaryKey;size:36"`
	DispatchID    string    `gorm:"size:36;not null"`
	UserID        string    `gorm:"size:64;index:idx_deliveries_user_at"`
	At            time.Time `gorm:"index:idx_deliveries_user_at"`
	ReminderCount int
	Channel       string `gorm:"size:16"`
	Delivered     bool
	Err           string
}

func (deliveryRow) TableName() string { return "deliveries" }

type postgresStore struct {
	db  *gorm.DB
	log logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres requires DATABASE_URL")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	if err := db.AutoMigrate(&reminderRow{}, &userRow{}, &deliveryRow{}); err != nil {
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	log.Debug("postgres store opened")
	return &postgresStore{db: db, log: log}, nil
}

func rowFromState(st reminder.State) reminderRow {
	return reminderRow{
		UserID:               st.UserID,
		IntervalMinutes:      st.IntervalMinutes,
		IsActive:             st.IsActive,
		LastNotificationSent: st.LastNotificationSent,
		NextNotificationTime: st.NextNotificationTime,
		TotalRemindersToday:  st.TotalRemindersToday,
		LastResetDate:        st.LastResetDate,
		CreatedAt:            st.CreatedAt,
		UpdatedAt:            st.UpdatedAt,
	}
}

func (r reminderRow) state() reminder.State {
	return reminder.State{
		UserID:               r.UserID,
		IntervalMinutes:      r.IntervalMinutes,
		IsActive:             r.IsActive,
		LastNotificationSent: r.LastNotificationSent,
		NextNotificationTime: r.NextNotificationTime,
		TotalRemindersToday:  r.TotalRemindersToday,
		LastResetDate:        r.LastResetDate,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

func (s *postgresStore) FindReminder(ctx context.Context, userID string) (reminder.State, error) {
	var row reminderRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reminder.State{}, ErrNotFound
	}
	if err != nil {
		return reminder.State{}, err
	}
	return row.state(), nil
}

func (s *postgresStore) UpsertReminder(ctx context.Context, st reminder.State) error {
	row := rowFromState(st)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"interval_minutes", "is_active", "last_notification_sent", "next_notification_time",
			"total_reminders_today", "last_reset_date", "updated_at",
		}),
	}).Create(&row).Error
}

func (s *postgresStore) DeleteReminder(ctx context.Context, userID string) error {
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&reminderRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) ListActiveReminders(ctx context.Context) ([]reminder.State, error) {
	var rows []reminderRow
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("user_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]reminder.State, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.state())
	}
	return out, nil
}

func (s *postgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return User{
		ID:             row.ID,
		Username:       row.Username,
		Email:          row.Email,
		Phone:          row.Phone,
		PushEndpoint:   row.PushEndpoint,
		TelegramChatID: row.TelegramChatID,
	}, nil
}

func (s *postgresStore) UpsertUser(ctx context.Context, u User) error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("user id is required")
	}
	row := userRow{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		Phone:          u.Phone,
		PushEndpoint:   u.PushEndpoint,
		TelegramChatID: u.TelegramChatID,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "email", "phone", "push_endpoint", "telegram_chat_id", "updated_at"}),
	}).Create(&row).Error
}

func (s *postgresStore) SetPushEndpoint(ctx context.Context, userID, endpoint string) error {
	res := s.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", userID).
		Updates(map[string]any{"push_endpoint": endpoint, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) AppendDeliveries(ctx context.Context, entries []DeliveryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]deliveryRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, deliveryRow{
			ID:            e.ID,
			DispatchID:    e.DispatchID,
			UserID:        e.UserID,
			At:            e.At,
			ReminderCount: e.ReminderCount,
			Channel:       e.Channel,
			Delivered:     e.Delivered,
			Err:           e.Error,
		})
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

func (s *postgresStore) ListDeliveries(ctx context.Context, userID string, limit int) ([]DeliveryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []deliveryRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("at DESC, channel").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]DeliveryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, DeliveryEntry{
			ID: r.ID, DispatchID: r.DispatchID, UserID: r.UserID, At: r.At,
			ReminderCount: r.ReminderCount, Channel: r.Channel, Delivered: r.Delivered, Error: r.Err,
		})
	}
	return out, nil
}

func (s *postgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
