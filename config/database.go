package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// ConnectDatabaseWithRetry opens the relational store selected by
// s.DBDriver, retrying with backoff. DBConnectAttempts of 0 retries forever.
func ConnectDatabaseWithRetry(s Settings) (*gorm.DB, error) {
	dialector, err := dialectorFor(s)
	if err != nil {
		return nil, err
	}

	var attempt int
	for {
		attempt++
		db, err := gorm.Open(dialector, initConfig())
		if err == nil {
			tunePool(db, s)
			if pluginErr := db.Use(otelgorm.NewPlugin()); pluginErr != nil {
				log.Printf("db connected but failed to install otelgorm plugin: %v", pluginErr)
			}
			if pluginErr := db.Use(NewOwnerScopePlugin()); pluginErr != nil {
				log.Printf("db connected but failed to install owner scope plugin: %v", pluginErr)
			}
			log.Printf("connected to database (driver=%s attempt=%d)", s.DBDriver, attempt)
			return db, nil
		}
		if s.DBConnectAttempts > 0 && attempt >= s.DBConnectAttempts {
			return nil, fmt.Errorf("connect database after %d attempts: %w", attempt, err)
		}

		sleep := utils.Backoff(attempt)
		log.Printf("failed to connect database (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		time.Sleep(sleep)
	}
}

// OpenDatabase connects and migrates the schema.
func OpenDatabase(s Settings) (*gorm.DB, error) {
	db, err := ConnectDatabaseWithRetry(s)
	if err != nil {
		return nil, err
	}
	if err := models.MigrateTable(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func dialectorFor(s Settings) (gorm.Dialector, error) {
	switch s.DBDriver {
	case DriverMySQL:
		return mysql.Open(mysqlDSN(s)), nil
	case DriverSQLite:
		// foreign keys on so transaction rows follow their account
		return sqlite.Open(s.SQLitePath + "?_foreign_keys=on"), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", s.DBDriver)
	}
}

func mysqlDSN(s Settings) string {
	network := "tcp"
	address := fmt.Sprintf("%s:%s", s.DBHost, s.DBPort)

	// Cloud SQL: DB_HOST=/cloudsql/<CONNECTION_NAME> connects over the proxy's unix socket.
	if strings.HasPrefix(s.DBHost, "/cloudsql/") {
		network = "unix"
		address = s.DBHost
	}

	return fmt.Sprintf("%s:%s@%s(%s)/%s?multiStatements=true&parseTime=true",
		s.DBUser,
		s.DBPassword,
		network,
		address,
		s.DBName,
	)
}

func tunePool(db *gorm.DB, s Settings) {
	sqlDB, err := db.DB()
	if err != nil || sqlDB == nil {
		return
	}
	if s.DBMaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(s.DBMaxOpenConns)
	}
	if s.DBMaxIdleConns >= 0 {
		sqlDB.SetMaxIdleConns(s.DBMaxIdleConns)
	}
	if s.DBConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(s.DBConnMaxLifetime)
	}
	if s.DBConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(s.DBConnMaxIdleTime)
	}
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         writeGormLog(),
		NamingStrategy: initNamingStrategy(),
	}
}

func initLog() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
}

func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}

// writeGormLog logs every statement to GORM_LOG when it is set.
func writeGormLog() logger.Interface {
	logFile := os.Getenv("GORM_LOG")
	if logFile == "" {
		return initLog()
	}
	f, err := os.Create(logFile)
	if err != nil {
		return initLog()
	}
	return logger.New(log.New(io.MultiWriter(f), "\r\n", log.LstdFlags), logger.Config{
		Colorful:      true,
		LogLevel:      logger.Info,
		SlowThreshold: time.Second,
	})
}
