package db

import (
	"fmt"
	"log"
	"os"

	"keytrack/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func ConnectDB() *gorm.DB {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}

	if err := Migrate(conn); err != nil {
		log.Fatal("Failed to migrate models: ", err)
	}
	log.Println("Database connected")
	return conn
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Key{},
		&models.AuditLogEntry{},
		&models.Notification{},
		&models.APIKey{},
		&models.ReminderRun{},
	); err != nil {
		return err
	}

	// unavailable if and only if a holder is set; the transitions maintain
	// this, the constraint makes any other writer fail loudly
	if err := db.Exec(fmt.Sprintf(`
	  ALTER TABLE %s DROP CONSTRAINT IF EXISTS ckt_keys_holder_status;
	`, models.KeyTable)).Error; err != nil {
		return err
	}
	if err := db.Exec(fmt.Sprintf(`
	  ALTER TABLE %s ADD CONSTRAINT ckt_keys_holder_status
	  CHECK ((status = 'unavailable') = (holder_id IS NOT NULL));
	`, models.KeyTable)).Error; err != nil {
		return err
	}

	// the overdue sweep scans this every day
	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_open_holder
	  ON %s (holder_id, taken_at)
	  WHERE status = 'unavailable' AND is_active = TRUE;
	`, models.KeyTable, models.KeyTable)).Error; err != nil {
		return err
	}

	return nil
}
