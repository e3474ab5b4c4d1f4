package model

// ================ Config ================
type UserConfig struct {
	Balance          float64 `envconfig:"USER_BALANCE" default:"1000"`
	Tier             string  `envconfig:"USER_TIER" default:"standard"`
	TransactionLimit float64 `envconfig:"USER_TRANSACTION_LIMIT" default:"500"`
}

type CatalogConfig struct {
	SeedFile string `envconfig:"SEED_FILE"`
}

type RoutesConfig struct {
	Login          string `envconfig:"ROUTE_LOGIN" default:"/login"`
	Balance        string `envconfig:"ROUTE_BALANCE" default:"/api/v2/user/balance"`
	BalanceMethod  string `envconfig:"ROUTE_BALANCE_METHOD" default:"GET"`
	Purchase       string `envconfig:"ROUTE_PURCHASE" default:"/api/v2/commerce/purchase"`
	Products       string `envconfig:"ROUTE_PRODUCTS" default:"/api/v2/products"`
	ProductsPublic bool   `envconfig:"PRODUCTS_PUBLIC" default:"false"`
}

type ServerConfig struct {
	Addr           string  `envconfig:"ADDR" default:":3000"`
	MetricsEnabled bool    `envconfig:"METRICS_ENABLED" default:"true"`
	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"0"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"20"`
}
