package database

import (
	"database/sql"
	"log"
	"sync"

	"github.com/flashmart/seckill/cache"

	"github.com/flashmart/seckill/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con, Cache: nil}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	err = createProductTable(db)
	if err != nil {
		return nil, err
	}
	err = createStockTable(db)
	if err != nil {
		return nil, err
	}
	err = createOrderTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// createProductTable creates a PostgreSQL table for the Product struct
func createProductTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS products (
			id SERIAL PRIMARY KEY,
			product_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			description TEXT,
			price NUMERIC(20, 4) NOT NULL DEFAULT 0,
			seckill_price NUMERIC(20, 4) NOT NULL DEFAULT 0,
			image_url TEXT,
			status TEXT NOT NULL DEFAULT 'OFF',
			seckill_start_time TIMESTAMP,
			seckill_end_time TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// createStockTable creates a PostgreSQL table for the StockRecord struct.
// One row per product; version increments on every successful write.
func createStockTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS product_stocks (
			id SERIAL PRIMARY KEY,
			stock_id TEXT NOT NULL UNIQUE,
			product_id TEXT NOT NULL UNIQUE REFERENCES products(product_id),
			total_stock BIGINT NOT NULL DEFAULT 0,
			available_stock BIGINT NOT NULL DEFAULT 0,
			locked_stock BIGINT NOT NULL DEFAULT 0,
			version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			CHECK (available_stock >= 0)
		)
	`)
	return err
}

// createOrderTable creates a PostgreSQL table for the SeckillOrder struct.
// The unique (user_id, product_id) pair is the durable one-win-per-user
// guarantee.
func createOrderTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS seckill_orders (
			id SERIAL PRIMARY KEY,
			order_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			product_id TEXT NOT NULL REFERENCES products(product_id),
			product_name TEXT,
			seckill_price NUMERIC(20, 4) NOT NULL DEFAULT 0,
			quantity BIGINT NOT NULL DEFAULT 1,
			total_amount NUMERIC(20, 4) NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'PENDING',
			pay_time TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, product_id)
		)
	`)
	return err
}
