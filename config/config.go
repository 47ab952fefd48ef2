package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything read from the environment. Loaded once at startup.
type Config struct {
	Port      string
	WebOrigin string

	RedisAddr string
	RedisPwd  string

	SessionTTL time.Duration

	// Secrets for signed payloads. QRSecret signs/verifies QR scan payloads,
	// IdentitySecret verifies tokens from the identity provider.
	QRSecret       string
	IdentitySecret string
	QRMaxAge       time.Duration

	// Reminder sweep: local clock time ("17:00") in Timezone, once per day.
	Timezone     string
	ReminderAt   string
	ReminderSlot string
	PurgeAt      string

	EmailEnabled bool
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPass     string
	MailFrom     string
	MailFromName string

	BootstrapAdminEmail string
	BootstrapAdminName  string
}

func LoadEnv() {
	if os.Getenv("ENV") != "prod" {
		if err := godotenv.Load(); err != nil {
			log.Println("no .env loaded:", err)
		}
	}
}

func get(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getSeconds(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}

func Load() Config {
	return Config{
		Port:      get("PORT", "3001"),
		WebOrigin: get("WEB_ORIGIN", "http://localhost:5173"),

		RedisAddr: get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:  os.Getenv("REDIS_PASSWORD"),

		SessionTTL: getSeconds("SESSION_TTL_SECONDS", 24*time.Hour),

		QRSecret:       get("QR_SECRET", "dev-qr-secret"),
		IdentitySecret: get("IDENTITY_SECRET", "dev-identity-secret"),
		QRMaxAge:       getSeconds("QR_MAX_AGE_SECONDS", 300*time.Second),

		Timezone:     get("REMINDER_TZ", "Asia/Bangkok"),
		ReminderAt:   get("REMINDER_AT", "17:00"),
		ReminderSlot: get("REMINDER_SLOT", "evening"),
		PurgeAt:      get("PURGE_AT", "03:00"),

		EmailEnabled: get("EMAIL_ENABLED", "true") == "true",
		SMTPHost:     get("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:     get("SMTP_PORT", "587"),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPass:     os.Getenv("SMTP_PASSWORD"),
		MailFrom:     get("MAIL_FROM", "keys@campus.local"),
		MailFromName: get("MAIL_FROM_NAME", "Campus Key Desk"),

		BootstrapAdminEmail: os.Getenv("BOOTSTRAP_ADMIN_EMAIL"),
		BootstrapAdminName:  get("BOOTSTRAP_ADMIN_NAME", "Administrator"),
	}
}
