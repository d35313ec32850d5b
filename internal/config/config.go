package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
	Server struct {
		Addr                string   `yaml:"addr"`
		Pprof               bool     `yaml:"pprof"`
		ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
		IdleTimeoutSeconds  int      `yaml:"idle_timeout_seconds"`
		AdminAllowCIDRs     []string `yaml:"admin_allow_cidrs"`
	} `yaml:"server"`
	Feed struct {
		Exchange           string  `yaml:"exchange"` // "okx" or "mock"
		WSURL              string  `yaml:"ws_url"`
		RESTURL            string  `yaml:"rest_url"`
		Symbol             string  `yaml:"symbol"`
		Channel            string  `yaml:"channel"`
		VerifyChecksum     bool    `yaml:"verify_checksum"`
		ReconnectSeconds   int     `yaml:"reconnect_seconds"`
		ResyncBurst        int     `yaml:"resync_burst"`
		ResyncPerMinute    float64 `yaml:"resync_per_minute"`
		ReadTimeoutSeconds int     `yaml:"read_timeout_seconds"`
	} `yaml:"feed"`
	Simulation struct {
		TakerFeeRate    string `yaml:"taker_fee_rate"` // decimal string, e.g. "0.0006"
		SelfQuote       bool   `yaml:"self_quote"`
		IntervalSeconds int    `yaml:"interval_seconds"`
		Quantity        string `yaml:"quantity"` // base quantity used by the self-quote loop
	} `yaml:"simulation"`
}

func defaultConfig() Config {
	var c Config
	c.Logging.Level = "info"
	c.Logging.Pretty = false
	c.Server.Addr = ":9090"
	c.Server.Pprof = false
	c.Server.ReadTimeoutSeconds = 5
	c.Server.WriteTimeoutSeconds = 10
	c.Server.IdleTimeoutSeconds = 60
	c.Server.AdminAllowCIDRs = []string{"127.0.0.0/8", "::1/128"}
	c.Feed.Exchange = "okx"
	c.Feed.WSURL = "wss://ws.okx.com:8443/ws/v5/public"
	c.Feed.RESTURL = "https://www.okx.com"
	c.Feed.Symbol = "BTC-USDT"
	c.Feed.Channel = "books"
	c.Feed.VerifyChecksum = true
	c.Feed.ReconnectSeconds = 2
	c.Feed.ResyncBurst = 3
	c.Feed.ResyncPerMinute = 6.0
	c.Feed.ReadTimeoutSeconds = 30
	c.Simulation.TakerFeeRate = "0.0006"
	c.Simulation.SelfQuote = false
	c.Simulation.IntervalSeconds = 5
	c.Simulation.Quantity = "0.1"
	return c
}

func Load() Config {
	c := defaultConfig()
	if path := os.Getenv("TRADESIM_CONFIG"); path != "" {
		if b, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(b, &c)
		}
	}
	if v := os.Getenv("TRADESIM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TRADESIM_LOG_PRETTY"); v == "1" || v == "true" {
		c.Logging.Pretty = true
	}
	if v := os.Getenv("TRADESIM_HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("TRADESIM_PPROF"); v == "1" || v == "true" {
		c.Server.Pprof = true
	}
	if v := os.Getenv("TRADESIM_ADMIN_ALLOW_CIDRS"); v != "" {
		c.Server.AdminAllowCIDRs = splitCSV(v)
	}
	if v := os.Getenv("TRADESIM_FEED_EXCHANGE"); v != "" {
		c.Feed.Exchange = v
	}
	if v := os.Getenv("TRADESIM_FEED_WS_URL"); v != "" {
		c.Feed.WSURL = v
	}
	if v := os.Getenv("TRADESIM_FEED_REST_URL"); v != "" {
		c.Feed.RESTURL = v
	}
	if v := os.Getenv("TRADESIM_SYMBOL"); v != "" {
		c.Feed.Symbol = v
	}
	if v := os.Getenv("TRADESIM_FEED_CHANNEL"); v != "" {
		c.Feed.Channel = v
	}
	if v := os.Getenv("TRADESIM_VERIFY_CHECKSUM"); v == "0" || v == "false" {
		c.Feed.VerifyChecksum = false
	}
	if v := os.Getenv("TRADESIM_TAKER_FEE_RATE"); v != "" {
		c.Simulation.TakerFeeRate = v
	}
	if v := os.Getenv("TRADESIM_SELF_QUOTE"); v == "1" || v == "true" {
		c.Simulation.SelfQuote = true
	}
	if v := os.Getenv("TRADESIM_SELF_QUOTE_INTERVAL"); v != "" {
		var n int
		_, _ = fmt.Sscan(v, &n)
		if n > 0 {
			c.Simulation.IntervalSeconds = n
		}
	}
	if v := os.Getenv("TRADESIM_SELF_QUOTE_QTY"); v != "" {
		c.Simulation.Quantity = v
	}
	return c
}

func splitCSV(s string) []string {
	var out []string
	buf := []rune{}
	for _, r := range s {
		if r == ',' {
			if len(buf) > 0 {
				out = append(out, string(buf))
				buf = buf[:0]
			}
			continue
		}
		buf = append(buf, r)
	}
	if len(buf) > 0 {
		out = append(out, string(buf))
	}
	return out
}
