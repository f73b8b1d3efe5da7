package database

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/ManuelReschke/BarberFox/app/models"
	"github.com/ManuelReschke/BarberFox/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

// GetDB returns the shared connection. SetupDatabase must have run.
func GetDB() *gorm.DB {
	return DB
}

func dsn() string {
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)
}

// Connect opens the MySQL connection, retrying while the server starts up.
func Connect() (*gorm.DB, error) {
	var db *gorm.DB
	var err error
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn(),
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{
			NowFunc:        func() time.Time { return time.Now().UTC() },
			TranslateError: true,
		})
		if err == nil {
			return db, nil
		}

		log.Warnf("[Database] Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Infof("[Database] Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}
	return nil, err
}

// SetupDatabase connects the shared DB and migrates it unless
// DB_AUTO_MIGRATE=false.
func SetupDatabase() {
	db, err := Connect()
	if err != nil {
		panic(err)
	}
	DB = db
	if !env.GetEnvBool("DB_AUTO_MIGRATE", true) {
		return
	}
	if err := Migrate(DB); err != nil {
		log.Errorf("[Database] AutoMigrate failed: %v", err)
		panic(err)
	}
}

// Models lists the tables the billing engine reads and writes.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Shop{},
		&models.ShopStaff{},
		&models.Subscription{},
		&models.Payment{},
		&models.ManualPaymentReport{},
		&models.PayPalWebhookEvent{},
		&models.Notification{},
	}
}

// Migrate creates or updates the billing tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
