package scaling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "valid", cfg: Config{DuplicatesCount: 3}},
		{name: "valid scheduled", cfg: Config{DuplicatesCount: 1, ScheduledEnabled: true, ScheduleTime: "08:30"}},
		{name: "zero copies", cfg: Config{DuplicatesCount: 0}, wantErr: "out of range"},
		{name: "too many copies", cfg: Config{DuplicatesCount: 101}, wantErr: "out of range"},
		{name: "bad schedule", cfg: Config{DuplicatesCount: 1, ScheduledEnabled: true, ScheduleTime: "25:99"}, wantErr: "invalid schedule_time"},
		{name: "schedule ignored when disabled", cfg: Config{DuplicatesCount: 1, ScheduleTime: "garbage"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfigCoversAccount(t *testing.T) {
	scoped := Config{AccountIDs: []int64{1, 3}}
	assert.True(t, scoped.CoversAccount(1))
	assert.False(t, scoped.CoversAccount(2))

	// Empty scope covers everything.
	unscoped := Config{}
	assert.True(t, unscoped.CoversAccount(42))
}

func TestResolveNameTemplate(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "", ResolveNameTemplate("", now))
	assert.Equal(t, "plain name", ResolveNameTemplate("plain name", now))
	assert.Equal(t, "promo 2026-08-31", ResolveNameTemplate("promo {date}", now))
	assert.Equal(t, "2026-08-31 x 2026-08-31", ResolveNameTemplate("{date} x {date}", now))
}
