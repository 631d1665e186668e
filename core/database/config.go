package database

import (
	"net"
	"net/url"
	"strings"

	coreconfig "github.com/m3rciful/postbot/core/config"
)

// PostgresDSN renders a libpq keyword/value connection string. Values are
// quoted so passwords may contain spaces and quotes.
func PostgresDSN(cfg coreconfig.PostgresConfig) string {
	pairs := [][2]string{
		{"user", cfg.User},
		{"password", cfg.Password},
		{"host", cfg.Host},
		{"port", cfg.Port},
		{"dbname", cfg.Name},
		{"sslmode", cfg.SSLMode},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p[1] == "" {
			continue
		}
		v := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(p[1])
		parts = append(parts, p[0]+"='"+v+"'")
	}
	return strings.Join(parts, " ")
}

// PostgresURL renders the URL form golang-migrate expects.
func PostgresURL(cfg coreconfig.PostgresConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, cfg.Port),
		Path:   "/" + cfg.Name,
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return u.String()
}
