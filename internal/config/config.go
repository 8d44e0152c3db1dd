package config // package config loads application configuration from environment variables

import (
    "fmt"
    "net/url"
    "os"
    "strings"
    "time"

    "github.com/joho/godotenv"

    "github.com/iliyamo/fiche-cuisine/internal/database"
)

// Defaults used when a variable is unset.
const (
    DefaultPort       = "8000"
    DefaultSQLitePath = "./data.db"
    DefaultTimezone   = "Europe/Paris"
)

// Config holds all runtime configuration values.  Each field corresponds to
// one or more environment variables.
type Config struct {
    Env             string         // application environment (e.g. "dev", "prod")
    Port            string         // HTTP port to listen on
    DBDriver        string         // database/sql driver name
    DBDSN           string         // driver-specific connection string
    Location        *time.Location // restaurant timezone, used for "today" and upcoming/past
    ZenchefBaseURL  string         // Zenchef API root
    ZenchefTimeout  time.Duration  // per-call upstream timeout
    RabbitURL       string         // broker for import events (empty disables publishing)
    CORSOrigins     []string       // allowed origins for the browser front-end
    PageSizeDefault int            // page size used when a request sends none
}

// LoadDotEnv loads a .env file from the working directory when one exists.
// Variables already set in the environment win.
func LoadDotEnv() error {
    if _, err := os.Stat(".env"); err != nil {
        return nil
    }
    return godotenv.Load()
}

// Load reads configuration values from environment variables and returns a
// Config.  Invalid values are reported as errors rather than silently
// replaced.
func Load() (Config, error) {
    cfg := Config{
        Env:             envStr("APP_ENV", "dev"),
        Port:            envStr("APP_PORT", DefaultPort),
        ZenchefBaseURL:  envStr("ZENCHEF_BASE_URL", "https://api.zenchef.com/v1"),
        ZenchefTimeout:  envDur("ZENCHEF_TIMEOUT", 30*time.Second),
        RabbitURL:       os.Getenv("RABBITMQ_URL"),
        CORSOrigins:     splitList(envStr("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")),
        PageSizeDefault: envInt("PAGE_SIZE_DEFAULT", 20),
    }
    if cfg.RabbitURL == "" {
        cfg.RabbitURL = os.Getenv("AMQP_URL")
    }

    loc, err := time.LoadLocation(envStr("RESTAURANT_TZ", DefaultTimezone))
    if err != nil {
        return cfg, fmt.Errorf("invalid RESTAURANT_TZ: %w", err)
    }
    cfg.Location = loc

    cfg.DBDriver, cfg.DBDSN, err = resolveDatabase()
    if err != nil {
        return cfg, err
    }
    return cfg, nil
}

// resolveDatabase picks the driver and DSN. DATABASE_URL wins and its
// scheme selects the driver (postgres://, postgresql://, mysql://,
// sqlite:///path). Without it, DB_HOST selects MySQL from the discrete
// DB_* variables, and otherwise a local SQLite file is used. DB_DRIVER
// forces the driver.
func resolveDatabase() (string, string, error) {
    driver := strings.ToLower(strings.TrimSpace(os.Getenv("DB_DRIVER")))
    raw := strings.TrimSpace(os.Getenv("DATABASE_URL"))

    if raw == "" {
        if driver == "" {
            driver = database.DriverSQLite
            if os.Getenv("DB_HOST") != "" {
                driver = database.DriverMySQL
            }
        }
        switch driver {
        case database.DriverMySQL:
            return driver, database.MySQLDSN(
                envStr("DB_USER", "root"), os.Getenv("DB_PASS"),
                envStr("DB_HOST", "127.0.0.1"), envStr("DB_PORT", "3306"), envStr("DB_NAME", "fiche_cuisine"),
            ), nil
        case database.DriverSQLite, "sqlite":
            return database.DriverSQLite, DefaultSQLitePath, nil
        default:
            return "", "", fmt.Errorf("DB_DRIVER=%s requires DATABASE_URL", driver)
        }
    }

    switch {
    case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
        return pick(driver, database.DriverPostgres), raw, nil
    case strings.HasPrefix(raw, "sqlite:///"):
        return pick(driver, database.DriverSQLite), strings.TrimPrefix(raw, "sqlite:///"), nil
    case strings.HasPrefix(raw, "mysql://"):
        dsn, err := mysqlURLToDSN(raw)
        return pick(driver, database.DriverMySQL), dsn, err
    }
    if driver == "" {
        return "", "", fmt.Errorf("cannot infer driver from DATABASE_URL; set DB_DRIVER")
    }
    if driver == "sqlite" {
        driver = database.DriverSQLite
    }
    return driver, raw, nil
}

func pick(forced, inferred string) string {
    if forced == "" {
        return inferred
    }
    if forced == "sqlite" {
        return database.DriverSQLite
    }
    return forced
}

func mysqlURLToDSN(raw string) (string, error) {
    u, err := url.Parse(raw)
    if err != nil {
        return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
    }
    pass, _ := u.User.Password()
    port := u.Port()
    if port == "" {
        port = "3306"
    }
    return database.MySQLDSN(u.User.Username(), pass, u.Hostname(), port, strings.TrimPrefix(u.Path, "/")), nil
}

func splitList(s string) []string {
    var out []string
    for _, p := range strings.Split(s, ",") {
        if p = strings.TrimSpace(p); p != "" {
            out = append(out, p)
        }
    }
    return out
}
