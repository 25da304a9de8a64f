package config

import (
	"errors"
	"flag"
	"net"
	"strconv"
	"time"
)

// NetAddress is the flag.Value behind -a.
type NetAddress struct {
	Host string
	Port int
}

// ParseFlags parses all configuration flags.
//
// Flags:
//
//	-a server address in format [host]:[port]
//	-d database DSN
//	-db-driver database/sql driver (pgx or postgres)
//	-local-dsn field client SQLite file
//	-c/-config json file path with configs
//	-token-sign-key token signing key
//	-token-issuer token issuer name
//	-request-timeout request timeout (e.g., "30s", "1m")
//	-hash-key payload integrity hash key
//	-redis-addr shared rate limit store address
//	-server-url sync server URL used by the field client
//	-sync-interval field client sync period
func ParseFlags() *StructuredConfig {
	var serverAddress NetAddress
	var databaseDSN, dbDriver, localDSN string
	var jsonConfigPath string
	var tokenSignKey string
	var tokenIssuer string
	var requestTimeout time.Duration
	var hashKey string
	var redisAddr string
	var serverURL string
	var syncInterval time.Duration

	flag.Var(&serverAddress, "a", "Net address host:port")
	flag.StringVar(&databaseDSN, "d", "", "Database DSN")
	flag.StringVar(&dbDriver, "db-driver", "", "Database driver (pgx or postgres)")
	flag.StringVar(&localDSN, "local-dsn", "", "Field client SQLite file")
	flag.StringVar(&jsonConfigPath, "c", "", "JSON config file path")
	flag.StringVar(&jsonConfigPath, "config", "", "JSON config file path (alias)")
	flag.StringVar(&tokenSignKey, "token-sign-key", "", "Token signing key")
	flag.StringVar(&tokenIssuer, "token-issuer", "", "Token issuer")
	flag.DurationVar(&requestTimeout, "request-timeout", 0, "Request timeout (e.g., 30s, 1m)")
	flag.StringVar(&hashKey, "hash-key", "", "Payload integrity hash key")
	flag.StringVar(&redisAddr, "redis-addr", "", "Redis address for shared rate limits")
	flag.StringVar(&serverURL, "server-url", "", "Sync server URL (field client)")
	flag.DurationVar(&syncInterval, "sync-interval", 0, "Field client sync interval (e.g., 5m)")

	flag.Parse()

	return &StructuredConfig{
		App: App{
			TokenSignKey: tokenSignKey,
			TokenIssuer:  tokenIssuer,
			HashKey:      hashKey,
		},
		Storage: Storage{
			DB: DB{
				DSN:    databaseDSN,
				Driver: dbDriver,
			},
			Local: Local{DSN: localDSN},
		},
		Server: Server{
			HTTPAddress:    serverAddress.String(),
			RequestTimeout: requestTimeout,
		},
		RateLimit:    RateLimit{RedisAddr: redisAddr},
		Adapter:      Adapter{HTTPAddress: serverURL},
		Workers:      Workers{SyncInterval: syncInterval},
		JSONFilePath: jsonConfigPath,
	}
}

// String renders the address for http.Server.Addr. A zero address renders
// empty so that the JSON file or defaults can still supply one.
func (a *NetAddress) String() string {
	if a.Host == "" && a.Port == 0 {
		return ""
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Set accepts host:port where host is "localhost", an IP literal (IPv6 in
// brackets) or empty for all interfaces.
func (a *NetAddress) Set(s string) error {
	host, rawPort, err := net.SplitHostPort(s)
	if err != nil {
		return errors.New("need address in a form `host:port`")
	}

	port, err := strconv.Atoi(rawPort)
	if err != nil {
		return err
	}
	if port < 1 || port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if host != "" && host != "localhost" && net.ParseIP(host) == nil {
		return errors.New("incorrect IP-address provided")
	}

	a.Host = host
	a.Port = port
	return nil
}
