package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// GatewayConfig holds payment gateway connection settings.
type GatewayConfig struct {
	BaseURL       string
	APIKey        string
	IntegrationID string
	FrameID       string
	Currency      string
	Timeout       time.Duration
}

// CheckoutConfig holds saga staging and redirect settings.
type CheckoutConfig struct {
	PendingTTL         time.Duration
	ReaperInterval     time.Duration
	SuccessRedirectURL string
	FailureRedirectURL string
}

// HTTPConfig holds the API and metrics listen addresses.
type HTTPConfig struct {
	Addr        string
	MetricsAddr string
}

// RedisConfig holds Redis connection and behavior settings for the pending
// store. An empty URL means the in-memory store is used instead.
type RedisConfig struct {
	URL          string
	DialTimeout  *time.Duration
	ReadTimeout  *time.Duration
	WriteTimeout *time.Duration
	PoolSize     *int
	MinIdleConns *int
	MaxRetries   *int
	PingTimeout  time.Duration
	EnableOTel   bool
	TLSConfig    *tls.Config
}

// KafkaConfig holds the optional settlement event topic settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// LoadGateway reads payment gateway config from env.
func LoadGateway() (GatewayConfig, error) {
	cfg := GatewayConfig{
		Currency: strings.TrimSpace(os.Getenv("PAYMENT_GATEWAY_CURRENCY")),
	}

	var err error
	if cfg.BaseURL, err = requiredString("PAYMENT_GATEWAY_URL"); err != nil {
		return cfg, err
	}
	if cfg.APIKey, err = requiredString("PAYMENT_GATEWAY_API_KEY"); err != nil {
		return cfg, err
	}
	if cfg.IntegrationID, err = requiredString("PAYMENT_GATEWAY_INTEGRATION_ID"); err != nil {
		return cfg, err
	}
	if cfg.FrameID, err = requiredString("PAYMENT_GATEWAY_FRAME_ID"); err != nil {
		return cfg, err
	}

	timeout, err := optionalDuration("PAYMENT_GATEWAY_TIMEOUT")
	if err != nil {
		return cfg, err
	}
	if timeout != nil {
		cfg.Timeout = *timeout
	}

	return cfg, nil
}

// LoadCheckout reads saga staging and redirect config from env. The pending
// TTL should match the gateway's payment session validity window.
func LoadCheckout() (CheckoutConfig, error) {
	cfg := CheckoutConfig{
		PendingTTL:     time.Hour,
		ReaperInterval: time.Minute,
	}

	var err error
	if cfg.SuccessRedirectURL, err = requiredString("CHECKOUT_SUCCESS_URL"); err != nil {
		return cfg, err
	}
	if cfg.FailureRedirectURL, err = requiredString("CHECKOUT_FAILURE_URL"); err != nil {
		return cfg, err
	}

	if ttl, err := optionalDuration("CHECKOUT_PENDING_TTL"); err != nil {
		return cfg, err
	} else if ttl != nil {
		cfg.PendingTTL = *ttl
	}
	if interval, err := optionalDuration("CHECKOUT_REAPER_INTERVAL"); err != nil {
		return cfg, err
	} else if interval != nil {
		cfg.ReaperInterval = *interval
	}

	return cfg, nil
}

// LoadHTTP reads the API and metrics listen addresses from env.
func LoadHTTP() (HTTPConfig, error) {
	addr, err := requiredString("HTTP_ADDR")
	if err != nil {
		return HTTPConfig{}, err
	}
	metricsAddr, err := requiredString("OBS_ADDR")
	if err != nil {
		return HTTPConfig{}, err
	}
	return HTTPConfig{Addr: addr, MetricsAddr: metricsAddr}, nil
}

// LoadRedis reads Redis config from env. The URL is optional; without it the
// pending store runs in memory.
func LoadRedis() (RedisConfig, error) {
	cfg := RedisConfig{
		URL:         strings.TrimSpace(os.Getenv("REDIS_URL")),
		PingTimeout: 5 * time.Second,
	}
	if cfg.URL == "" {
		return cfg, nil
	}

	var err error
	if cfg.DialTimeout, err = optionalDuration("REDIS_DIAL_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.ReadTimeout, err = optionalDuration("REDIS_READ_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.WriteTimeout, err = optionalDuration("REDIS_WRITE_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.PoolSize, err = optionalInt("REDIS_POOL_SIZE"); err != nil {
		return cfg, err
	}
	if cfg.MinIdleConns, err = optionalInt("REDIS_MIN_IDLE_CONNS"); err != nil {
		return cfg, err
	}
	if cfg.MaxRetries, err = optionalInt("REDIS_MAX_RETRIES"); err != nil {
		return cfg, err
	}

	if pingTimeout, err := optionalDuration("REDIS_PING_TIMEOUT"); err != nil {
		return cfg, err
	} else if pingTimeout != nil {
		cfg.PingTimeout = *pingTimeout
	}

	if cfg.EnableOTel, err = optionalBool("REDIS_OTEL"); err != nil {
		return cfg, err
	}

	if cfg.TLSConfig, err = loadRedisTLSFromEnv(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadKafka reads the optional settlement topic config from env. Both
// brokers and topic must be set together.
func LoadKafka() (KafkaConfig, error) {
	brokersCSV := strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	topic := strings.TrimSpace(os.Getenv("KAFKA_TOPIC"))

	if brokersCSV == "" && topic == "" {
		return KafkaConfig{}, nil
	}
	if brokersCSV == "" || topic == "" {
		return KafkaConfig{}, errors.New("KAFKA_BROKERS and KAFKA_TOPIC must be set together")
	}

	var brokers []string
	for _, broker := range strings.Split(brokersCSV, ",") {
		broker = strings.TrimSpace(broker)
		if broker != "" {
			brokers = append(brokers, broker)
		}
	}
	if len(brokers) == 0 {
		return KafkaConfig{}, errors.New("KAFKA_BROKERS contains no brokers")
	}

	return KafkaConfig{Brokers: brokers, Topic: topic}, nil
}

func loadRedisTLSFromEnv() (*tls.Config, error) {
	caFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CA_FILE"))
	certFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CERT_FILE"))
	keyFile := strings.TrimSpace(os.Getenv("REDIS_TLS_KEY_FILE"))
	serverName := strings.TrimSpace(os.Getenv("REDIS_TLS_SERVER_NAME"))
	insecureStr := strings.TrimSpace(os.Getenv("REDIS_TLS_INSECURE_SKIP_VERIFY"))

	if caFile == "" && certFile == "" && keyFile == "" && serverName == "" && insecureStr == "" {
		return nil, nil
	}
	if (certFile == "") != (keyFile == "") {
		return nil, errors.New("REDIS_TLS_CERT_FILE and REDIS_TLS_KEY_FILE must be set together")
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: serverName,
	}

	if insecureStr != "" {
		insecure, err := strconv.ParseBool(insecureStr)
		if err != nil {
			return nil, fmt.Errorf("REDIS_TLS_INSECURE_SKIP_VERIFY: %w", err)
		}
		tlsConfig.InsecureSkipVerify = insecure
	}

	if caFile != "" {
		pemData, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read REDIS_TLS_CA_FILE: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, errors.New("REDIS_TLS_CA_FILE contains no valid certificates")
		}
		tlsConfig.RootCAs = pool
	}

	if certFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load redis TLS keypair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func optionalDuration(name string) (*time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalInt(name string) (*int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalBool(name string) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return val, nil
}

func requiredString(name string) (string, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return raw, nil
}
