package persist

import "fmt"

// Open returns the store for driver: a gorm database (postgres, sqlite) or
// a CSV file.
func Open(driver, dsn string) (Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sink %q needs a DSN", driver)
	}
	switch driver {
	case DriverPostgres, DriverSQLite:
		return OpenGorm(driver, dsn)
	case DriverCSV:
		return NewCSVSink(dsn), nil
	}
	return nil, fmt.Errorf("unknown sink driver %q", driver)
}
