// Package database provides relational database configuration options and
// gorm connection setup for the supported drivers.
package database

import (
	"fmt"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/pflag"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/compliance-x/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Options defines configuration options for the relational store.
type Options struct {
	// Driver selects the database backend: sqlite, mysql or postgres.
	Driver string `json:"driver" mapstructure:"driver"`

	// Path is the database file for the sqlite driver.
	Path string `json:"path" mapstructure:"path"`

	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"-" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`

	// SSLMode applies to the postgres driver only.
	SSLMode string `json:"ssl-mode" mapstructure:"ssl-mode"`

	MaxIdleConnections    int           `json:"max-idle-connections" mapstructure:"max-idle-connections"`
	MaxOpenConnections    int           `json:"max-open-connections" mapstructure:"max-open-connections"`
	MaxConnectionLifeTime time.Duration `json:"max-connection-life-time" mapstructure:"max-connection-life-time"`

	// LogLevel is the gorm log level, 1 (silent) to 4 (info).
	LogLevel int `json:"log-level" mapstructure:"log-level"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Driver:                DriverSQLite,
		Path:                  "compliance.db",
		Host:                  "127.0.0.1",
		Port:                  5432,
		Username:              "compliance",
		SSLMode:               "disable",
		MaxIdleConnections:    10,
		MaxOpenConnections:    100,
		MaxConnectionLifeTime: 10 * time.Second,
		LogLevel:              1,
	}
}

// AddFlags adds flags for database options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Driver, p+"db.driver", o.Driver, "Database driver (sqlite, mysql, postgres).")
	fs.StringVar(&o.Path, p+"db.path", o.Path, "Database file path (sqlite driver).")
	fs.StringVar(&o.Host, p+"db.host", o.Host, "Database host.")
	fs.IntVar(&o.Port, p+"db.port", o.Port, "Database port.")
	fs.StringVar(&o.Username, p+"db.username", o.Username, "Database username.")
	fs.StringVar(&o.Password, p+"db.password", o.Password, "Database password (DEPRECATED: use DB_PASSWORD env var instead).")
	fs.StringVar(&o.Database, p+"db.database", o.Database, "Database name.")
	fs.StringVar(&o.SSLMode, p+"db.ssl-mode", o.SSLMode, "Database SSL mode (postgres driver).")
	fs.IntVar(&o.MaxIdleConnections, p+"db.max-idle-connections", o.MaxIdleConnections, "Database max idle connections.")
	fs.IntVar(&o.MaxOpenConnections, p+"db.max-open-connections", o.MaxOpenConnections, "Database max open connections.")
	fs.DurationVar(&o.MaxConnectionLifeTime, p+"db.max-connection-life-time", o.MaxConnectionLifeTime, "Database max connection life time.")
	fs.IntVar(&o.LogLevel, p+"db.log-level", o.LogLevel, "Database log level, 1 (silent) to 4 (info).")
}

// Validate checks if the options are valid.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	if o.Password == "" {
		o.Password = os.Getenv("DB_PASSWORD")
	}
	if o.Password != "" && os.Getenv("DB_PASSWORD") == "" {
		fmt.Fprintf(os.Stderr, "WARNING: Passing the database password via CLI is insecure. Use the DB_PASSWORD environment variable instead.\n")
	}

	var errs []error
	switch o.Driver {
	case DriverSQLite:
		if o.Path == "" {
			errs = append(errs, fmt.Errorf("db.path is required for the sqlite driver"))
		}
	case DriverMySQL, DriverPostgres:
		if o.Database == "" {
			errs = append(errs, fmt.Errorf("db.database is required for the %s driver", o.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported db.driver: %s", o.Driver))
	}
	return errs
}

// Complete completes the options with defaults.
func (o *Options) Complete() error {
	if o.Driver == DriverMySQL && o.Port == 5432 {
		o.Port = 3306
	}
	return nil
}

// DSN returns the connection string for the configured driver.
func (o *Options) DSN() string {
	switch o.Driver {
	case DriverMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=Local",
			o.Username, o.Password, o.Host, o.Port, o.Database)
	case DriverPostgres:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			o.Host, o.Port, o.Username, o.Password, o.Database, o.SSLMode)
	default:
		return o.Path
	}
}

// New opens a gorm database handle per the options.
func (o *Options) New() (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch o.Driver {
	case DriverMySQL:
		dialector = mysql.Open(o.DSN())
	case DriverPostgres:
		dialector = postgres.Open(o.DSN())
	case DriverSQLite:
		dialector = sqlite.Open(o.DSN())
	default:
		return nil, fmt.Errorf("unsupported db.driver: %s", o.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.LogLevel(o.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxIdleConns(o.MaxIdleConnections)
	sqlDB.SetMaxOpenConns(o.MaxOpenConnections)
	sqlDB.SetConnMaxLifetime(o.MaxConnectionLifeTime)

	return db, nil
}
