package migration

import (
	clientdomain "github.com/socialdesklabs/socialdesk/internal/client/domain"
	"github.com/socialdesklabs/socialdesk/internal/config"
	invoicedomain "github.com/socialdesklabs/socialdesk/internal/invoice/domain"
	paymentdomain "github.com/socialdesklabs/socialdesk/internal/payment/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Run),
)

// Run migrates the schema. Postgres goes through the versioned embedded
// migrations; sqlite (development and tests) uses AutoMigrate since the
// embedded SQL targets postgres types.
func Run(cfg config.Config, conn *gorm.DB) error {
	if cfg.Database.Driver == "postgres" {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}

	return AutoMigrate(conn)
}

func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&clientdomain.Account{},
		&invoicedomain.Record{},
		&paymentdomain.EventRecord{},
	)
}
