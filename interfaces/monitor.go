package interfaces

import (
	"context"

	"github.com/customeros/codewatch/internal/enum"
	"github.com/customeros/codewatch/internal/models"
)

// MonitorService is the control and query surface of the monitor used by
// the HTTP layer and the scheduler.
type MonitorService interface {
	Start(ctx context.Context) (bool, error)
	Stop() bool
	Active() bool
	RunID() string
	RequestResync(reason string) bool
	CheckNow(ctx context.Context) ([]models.EmailRecord, error)

	Records(category enum.Category, account string) []models.EmailRecord
	Stats() models.RecordStats
	Status() []models.SessionStatus
	Accounts() []models.Account

	Settings() models.Settings
	UpdateSettings(update models.SettingsUpdate) (models.Settings, error)
}
