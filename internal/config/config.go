package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	// SiteURL is the public base URL of the storefront, used when building
	// recovery and checkout links.
	SiteURL      string
	AdminURL     string
	ShopDomain   string
	ShopName     string
	Currency     string
	CountryCode  string
	ProvinceCode string
	Timezone     string

	// JiltHostname is the bare hostname of the recovery SaaS; API requests go
	// to https://api.{JiltHostname}/v1.
	JiltHostname string

	LogLevel string
	HTTPAddr string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "cartloop"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		SiteURL:      strings.TrimRight(getenv("SITE_URL", "http://localhost:8080"), "/"),
		AdminURL:     strings.TrimRight(getenv("ADMIN_URL", "http://localhost:8080/admin"), "/"),
		ShopDomain:   getenv("SHOP_DOMAIN", "localhost:8080"),
		ShopName:     getenv("SHOP_NAME", "cartloop dev shop"),
		Currency:     getenv("SHOP_CURRENCY", "USD"),
		CountryCode:  getenv("SHOP_COUNTRY", "US"),
		ProvinceCode: getenv("SHOP_PROVINCE", ""),
		Timezone:     getenv("SHOP_TIMEZONE", "UTC"),
		JiltHostname: getenv("JILT_HOSTNAME", "jilt.com"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "cartloop"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),
	}
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewRuntimeHolder),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
