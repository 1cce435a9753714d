package snowflake

import "strings"

// Config holds the warehouse connection settings.
type Config struct {
	Account   string
	User      string
	Password  string
	Database  string
	Schema    string
	Warehouse string
	// Table holds one row per entity per day.
	Table string
}

// ParseConnectionString extracts components from a semicolon separated
// connection string.
// Format: scheme=https;ACCOUNT=xxx;HOST=yyy;port=443;USER=zzz;PASSWORD=www;DB=aaa.bbb;WAREHOUSE=ccc;
func ParseConnectionString(connStr string) Config {
	parts := make(map[string]string)
	for _, kv := range strings.Split(connStr, ";") {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		parts[strings.ToUpper(strings.TrimSpace(key))] = value
	}

	// DB may carry the schema as database.schema
	database, schema, _ := strings.Cut(parts["DB"], ".")
	return Config{
		Account:   parts["ACCOUNT"],
		User:      parts["USER"],
		Password:  parts["PASSWORD"],
		Database:  database,
		Schema:    schema,
		Warehouse: parts["WAREHOUSE"],
	}
}

// merge fills empty fields of c from o.
func (c Config) merge(o Config) Config {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&c.Account, o.Account)
	fill(&c.User, o.User)
	fill(&c.Password, o.Password)
	fill(&c.Database, o.Database)
	fill(&c.Schema, o.Schema)
	fill(&c.Warehouse, o.Warehouse)
	fill(&c.Table, o.Table)
	return c
}
