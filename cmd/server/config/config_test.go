package config

import (
	"strings"
	"testing"
	"time"
)

func setGatewayEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PAYMENT_GATEWAY_URL", "https://gateway.example")
	t.Setenv("PAYMENT_GATEWAY_API_KEY", "key-123")
	t.Setenv("PAYMENT_GATEWAY_INTEGRATION_ID", "int-55")
	t.Setenv("PAYMENT_GATEWAY_FRAME_ID", "frame-42")
}

func TestLoadGateway(t *testing.T) {
	setGatewayEnv(t)
	t.Setenv("PAYMENT_GATEWAY_CURRENCY", "EGP")
	t.Setenv("PAYMENT_GATEWAY_TIMEOUT", "15s")

	cfg, err := LoadGateway()
	if err != nil {
		t.Fatalf("load gateway: %v", err)
	}
	if cfg.BaseURL != "https://gateway.example" || cfg.APIKey != "key-123" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.FrameID != "frame-42" || cfg.Currency != "EGP" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Timeout != 15*time.Second {
		t.Errorf("timeout = %v", cfg.Timeout)
	}
}

func TestLoadGateway_MissingRequired(t *testing.T) {
	setGatewayEnv(t)
	t.Setenv("PAYMENT_GATEWAY_API_KEY", "")

	_, err := LoadGateway()
	if err == nil || !strings.Contains(err.Error(), "PAYMENT_GATEWAY_API_KEY") {
		t.Fatalf("expected missing-key error, got %v", err)
	}
}

func TestLoadGateway_BadTimeout(t *testing.T) {
	setGatewayEnv(t)
	t.Setenv("PAYMENT_GATEWAY_TIMEOUT", "soon")

	if _, err := LoadGateway(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadCheckout_Defaults(t *testing.T) {
	t.Setenv("CHECKOUT_SUCCESS_URL", "https://shop.example/orders")
	t.Setenv("CHECKOUT_FAILURE_URL", "https://shop.example/cart")
	t.Setenv("CHECKOUT_PENDING_TTL", "")
	t.Setenv("CHECKOUT_REAPER_INTERVAL", "")

	cfg, err := LoadCheckout()
	if err != nil {
		t.Fatalf("load checkout: %v", err)
	}
	if cfg.PendingTTL != time.Hour {
		t.Errorf("pending ttl = %v, want 1h default", cfg.PendingTTL)
	}
	if cfg.ReaperInterval != time.Minute {
		t.Errorf("reaper interval = %v, want 1m default", cfg.ReaperInterval)
	}
}

func TestLoadCheckout_Overrides(t *testing.T) {
	t.Setenv("CHECKOUT_SUCCESS_URL", "https://shop.example/orders")
	t.Setenv("CHECKOUT_FAILURE_URL", "https://shop.example/cart")
	t.Setenv("CHECKOUT_PENDING_TTL", "30m")
	t.Setenv("CHECKOUT_REAPER_INTERVAL", "10s")

	cfg, err := LoadCheckout()
	if err != nil {
		t.Fatalf("load checkout: %v", err)
	}
	if cfg.PendingTTL != 30*time.Minute || cfg.ReaperInterval != 10*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadCheckout_MissingRedirects(t *testing.T) {
	t.Setenv("CHECKOUT_SUCCESS_URL", "")
	t.Setenv("CHECKOUT_FAILURE_URL", "https://shop.example/cart")

	if _, err := LoadCheckout(); err == nil {
		t.Fatal("expected error for missing success url")
	}
}

func TestLoadHTTP(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("OBS_ADDR", ":9090")

	cfg, err := LoadHTTP()
	if err != nil {
		t.Fatalf("load http: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.MetricsAddr != ":9090" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadRedis_EmptyURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	cfg, err := LoadRedis()
	if err != nil {
		t.Fatalf("load redis: %v", err)
	}
	if cfg.URL != "" {
		t.Errorf("url = %q", cfg.URL)
	}
	if cfg.PingTimeout != 5*time.Second {
		t.Errorf("ping timeout = %v", cfg.PingTimeout)
	}
}

func TestLoadRedis_FullConfig(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_DIAL_TIMEOUT", "2s")
	t.Setenv("REDIS_POOL_SIZE", "20")
	t.Setenv("REDIS_PING_TIMEOUT", "1s")
	t.Setenv("REDIS_OTEL", "true")

	cfg, err := LoadRedis()
	if err != nil {
		t.Fatalf("load redis: %v", err)
	}
	if cfg.DialTimeout == nil || *cfg.DialTimeout != 2*time.Second {
		t.Errorf("dial timeout = %v", cfg.DialTimeout)
	}
	if cfg.PoolSize == nil || *cfg.PoolSize != 20 {
		t.Errorf("pool size = %v", cfg.PoolSize)
	}
	if cfg.PingTimeout != time.Second {
		t.Errorf("ping timeout = %v", cfg.PingTimeout)
	}
	if !cfg.EnableOTel {
		t.Error("otel should be enabled")
	}
}

func TestLoadRedis_NegativeValueRejected(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_POOL_SIZE", "-1")

	if _, err := LoadRedis(); err == nil {
		t.Fatal("expected error for negative pool size")
	}
}

func TestLoadKafka(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("KAFKA_TOPIC", "settlements")

	cfg, err := LoadKafka()
	if err != nil {
		t.Fatalf("load kafka: %v", err)
	}
	if len(cfg.Brokers) != 2 || cfg.Brokers[1] != "broker-2:9092" {
		t.Errorf("brokers = %v", cfg.Brokers)
	}
	if cfg.Topic != "settlements" {
		t.Errorf("topic = %q", cfg.Topic)
	}
}

func TestLoadKafka_Unset(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("KAFKA_TOPIC", "")

	cfg, err := LoadKafka()
	if err != nil {
		t.Fatalf("load kafka: %v", err)
	}
	if len(cfg.Brokers) != 0 || cfg.Topic != "" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadKafka_PartialConfigRejected(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-1:9092")
	t.Setenv("KAFKA_TOPIC", "")

	if _, err := LoadKafka(); err == nil {
		t.Fatal("expected error when only brokers are set")
	}
}
