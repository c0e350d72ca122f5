package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`
	BaseURL     string `envconfig:"BASE_URL" default:"http://localhost:8080"`

	// Control-plane store.
	DBConnectionString string `envconfig:"DATABASE_URL" required:"true"`

	// Administrative connection used only for engine-level DDL (role/database
	// create and drop). Kept separate from the control-plane pool so DDL never
	// runs inside an application transaction.
	AdminDBConnectionString string `envconfig:"ADMIN_DATABASE_URL" required:"true"`
	TenantDBHost            string `envconfig:"TENANT_DB_HOST" default:"localhost"`
	TenantDBPort            int    `envconfig:"TENANT_DB_PORT" default:"5432"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// Accounts allowed to review payment proofs.
	AdminUserIDs []string `envconfig:"ADMIN_USER_IDS"`

	// Payment gateway.
	PaystackSecretKey  string `envconfig:"PAYSTACK_SECRET_KEY" required:"true"`
	PaystackBaseURL    string `envconfig:"PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	PaystackTimeoutSec int    `envconfig:"PAYSTACK_TIMEOUT_SEC" default:"15"`
	// Fixed conversion rate applied to extension amounts (minor units per
	// plan-price unit).
	PaystackFxRate int64 `envconfig:"PAYSTACK_FX_RATE" default:"100"`

	// Blob storage for payment-proof screenshots.
	S3URL       string `envconfig:"S3_URL" required:"true"`
	S3Bucket    string `envconfig:"S3_BUCKET" required:"true"`
	S3Region    string `envconfig:"S3_REGION" required:"true"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY" required:"true"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY" required:"true"`

	// Tenant file storage.
	StorageRoot  string `envconfig:"STORAGE_ROOT" default:"storage"`
	StorageQuota int64  `envconfig:"STORAGE_QUOTA_BYTES" default:"2147483648"`

	// Outbound email (fire and forget).
	SMTPServer  string `envconfig:"SMTP_SERVER" default:"smtp.gmail.com"`
	SMTPPort    int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser    string `envconfig:"SMTP_USERNAME"`
	SMTPPass    string `envconfig:"SMTP_PASSWORD"`
	SMTPSender  string `envconfig:"SMTP_DEFAULT_SENDER" default:"noreply@shardz.dev"`
	SMTPAppName string `envconfig:"APP_NAME" default:"Shardz"`

	// Billing event fan-out.
	GCPProjectID       string `envconfig:"GCP_PROJECT_ID"`
	BillingEventsTopic string `envconfig:"BILLING_EVENTS_TOPIC" default:"billing-events"`

	// Billing cron.
	BillingCronIntervalHours int `envconfig:"BILLING_CRON_INTERVAL_HOURS" default:"24"`

	// OAuth identity providers.
	GitHubClientID     string `envconfig:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `envconfig:"GITHUB_CLIENT_SECRET"`
	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`

	// Interactive client binary for terminal sessions.
	PsqlPath string `envconfig:"PSQL_PATH" default:"psql"`

	// Dump/restore binaries for tenant migration.
	PgDumpPath    string `envconfig:"PG_DUMP_PATH" default:"pg_dump"`
	PgRestorePath string `envconfig:"PG_RESTORE_PATH" default:"pg_restore"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
