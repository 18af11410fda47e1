package shared

type ServerConfig struct {
	Tandem   TandemConfig   `mapstructure:"tandem" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Sqlite   SqliteConfig   `mapstructure:"sqlite"`
	Elevated ElevatedConfig `mapstructure:"elevated" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Twilio   TwilioConfig   `mapstructure:"twilio"`
	Google   GoogleConfig   `mapstructure:"google"`
}

type TandemConfig struct {
	PrivateKeyPem string         `mapstructure:"privateKeyPem" validate:"required"`
	PublicBaseURL string         `mapstructure:"publicBaseURL"`
	Cron          CronConfig     `mapstructure:"cron" validate:"required"`
	Listener      ListenerConfig `mapstructure:"listener" validate:"required"`
	// TrustedProxies lists the IPs or CIDRs allowed to set X-Forwarded-For
	TrustedProxies []string `mapstructure:"trustedProxies" validate:"omitempty,dive,ip|cidr"`
}

type DatabaseConfig struct {
	// Driver defaults to sqlite when empty
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=sqlite postgres"`
	DSN    string `mapstructure:"dsn"`
}

type SqliteConfig struct {
	PassPhrase string `mapstructure:"passPhrase"`
}

// ElevatedConfig configures the boundary that writes reciprocal contacts.
// When URL is empty the boundary runs in-process with the API server.
type ElevatedConfig struct {
	PrivateKeyPem string         `mapstructure:"privateKeyPem" validate:"required"`
	URL           string         `mapstructure:"url" validate:"omitempty,url"`
	Listener      ListenerConfig `mapstructure:"listener" validate:"-"`
}

type RedisConfig struct {
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port" validate:"required_with=Host"`
	Password         string `mapstructure:"password"`
	DB               int    `mapstructure:"db"`
	LookupsPerMinute int    `mapstructure:"lookupsPerMinute" validate:"omitempty,min=1"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic" validate:"required_with=Brokers"`
}

type TwilioConfig struct {
	AccountSid          string `mapstructure:"accountSid"`
	AuthToken           string `mapstructure:"authToken" validate:"required_with=AccountSid"`
	MessagingServiceSid string `mapstructure:"messagingServiceSid" validate:"required_with=AccountSid"`
}

type GoogleConfig struct {
	ApplicationCredentials string        `mapstructure:"applicationCredentials"`
	Storage                StorageConfig `mapstructure:"storage"`
}

type CronConfig struct {
	TimeZone string `mapstructure:"timeZone" validate:"required"`
}

type ListenerConfig struct {
	Port int `mapstructure:"port" validate:"required"`
}

type StorageConfig struct {
	Bucket                    string `mapstructure:"bucket" validate:"required_with=EnableSqliteBackupAndSync"`
	Prefix                    string `mapstructure:"prefix" validate:"required_with=EnableSqliteBackupAndSync"`
	SqliteBackupSchedule      string `mapstructure:"sqliteBackupSchedule" validate:"required_with=EnableSqliteBackupAndSync"`
	EnableSqliteBackupAndSync bool   `mapstructure:"enableSqliteBackupAndSync"`
}

// UsePostgres reports whether the configured driver is postgres.
func (c DatabaseConfig) UsePostgres() bool {
	return c.Driver == "postgres"
}
