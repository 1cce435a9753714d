// Package snowflake reads daily entity performance rows from the reporting
// warehouse. It is an alternative record source to the DynamoDB store for
// clients whose platform sync lands in Snowflake.
package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/snowflakedb/gosnowflake"

	"github.com/ignite/adclassify/internal/config"
	"github.com/ignite/adclassify/internal/domain"
	"github.com/ignite/adclassify/internal/pkg/logger"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*){0,2}$`)

// Client provides access to Snowflake database
type Client struct {
	db    *sql.DB
	table string
}

// ConfigFrom turns the application config into a driver config. Explicit
// fields win over the connection string.
func ConfigFrom(cfg config.SnowflakeConfig) Config {
	explicit := Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
		Table:     cfg.Table,
	}
	if cfg.ConnectionString == "" {
		return explicit
	}
	return explicit.merge(ParseConnectionString(cfg.ConnectionString))
}

// NewClient creates a new Snowflake client
func NewClient(cfg Config) (*Client, error) {
	dsn, err := gosnowflake.DSN(&gosnowflake.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
	})
	if err != nil {
		return nil, fmt.Errorf("building snowflake dsn: %w", err)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open snowflake connection: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewClientWithDB(db, cfg.Table)
}

// NewClientWithDB wraps an open handle. The table name is validated because
// it is interpolated into the query.
func NewClientWithDB(db *sql.DB, table string) (*Client, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid snowflake table name %q", table)
	}
	return &Client{db: db, table: table}, nil
}

// Close closes the database connection
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping tests the database connection
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// ListDailyRecords returns the client's rows dated within [from, to].
func (c *Client) ListDailyRecords(ctx context.Context, clientID string, from, to time.Time) ([]domain.DailyRecord, error) {
	query := fmt.Sprintf(`
		SELECT CLIENT_ID, LEVEL, ENTITY_ID, DAY, ENTITY_NAME, PARENT_ID, CONCEPT_ID,
		       SPEND, IMPRESSIONS, CLICKS, PURCHASES, CONVERSION_VALUE, VIDEO_VIEWS_3S,
		       VIEW_CONTENT, ADD_TO_CART, INITIATE_CHECKOUT, FREQUENCY, DAILY_BUDGET
		FROM %s
		WHERE CLIENT_ID = ? AND DAY BETWEEN ? AND ?
		ORDER BY DAY, LEVEL, ENTITY_ID
	`, c.table)

	rows, err := c.db.QueryContext(ctx, query, clientID,
		domain.Day(from).Format(domain.DateLayout), domain.Day(to).Format(domain.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily records: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyRecord
	for rows.Next() {
		var (
			clientID                                      string
			level, entityID, name, parent, cpt            sql.NullString
			day                                           sql.NullTime
			spend, purchases, value, views, carts, checks sql.NullFloat64
			impressions, clicks, videoViews               sql.NullInt64
			frequency, budget                             sql.NullFloat64
		)
		if err := rows.Scan(
			&clientID, &level, &entityID, &day, &name, &parent, &cpt,
			&spend, &impressions, &clicks, &purchases, &value, &videoViews,
			&views, &carts, &checks, &frequency, &budget,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		// A row missing its identity or a core flow metric is dropped here;
		// the rest of the client's rows still load.
		if !level.Valid || !entityID.Valid || !day.Valid ||
			!spend.Valid || !impressions.Valid || !clicks.Valid || !purchases.Valid {
			logger.Warn("skipping snowflake row with NULL required column",
				"client_id", clientID, "entity_id", entityID.String, "level", level.String)
			continue
		}

		r := domain.DailyRecord{
			Key:              domain.EntityKey{ClientID: clientID, Level: domain.Level(level.String), EntityID: entityID.String},
			Date:             domain.Day(day.Time),
			Name:             name.String,
			ParentID:         parent.String,
			ConceptID:        cpt.String,
			Spend:            spend.Float64,
			Impressions:      impressions.Int64,
			Clicks:           clicks.Int64,
			Purchases:        purchases.Float64,
			ConversionValue:  value.Float64,
			VideoViews3s:     videoViews.Int64,
			ViewContent:      views.Float64,
			AddToCart:        carts.Float64,
			InitiateCheckout: checks.Float64,
		}
		if frequency.Valid {
			r.Frequency = &frequency.Float64
		}
		if budget.Valid {
			r.DailyBudget = &budget.Float64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
