package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultShutdownTimeout      = 20 * time.Second
	defaultCurrency             = "INR"
	defaultPendingTimeout       = 3 * time.Minute
	defaultSweepInterval        = time.Minute
	defaultSweepBatch           = 100
	defaultOperatorTopic        = "operator-notifications"
	defaultOrderTopic           = "order-events"
	defaultRedisAddr            = "localhost:6379"
	defaultLockTTL              = 30 * time.Second
	defaultJWTIssuer            = "tiffinbox"
	defaultSecurityEnvironment  = "local"
	defaultOIDCJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer       = "https://accounts.google.com"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyKeyPrefix = "idem:"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	Gateway       GatewayConfig
	Payments      PaymentsConfig
	Notifications NotificationsConfig
	Events        EventsConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Security      SecurityConfig
	Idempotency   IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// GatewayConfig holds payment gateway credentials.
type GatewayConfig struct {
	StripeAPIKey    string
	SignatureSecret string
	Currency        string
}

// PaymentsConfig tunes pending payment cleanup.
type PaymentsConfig struct {
	PendingTimeout time.Duration
	SweepInterval  time.Duration
	SweepBatch     int
}

// NotificationsConfig routes operator notifications through Pub/Sub.
type NotificationsConfig struct {
	PubSubProjectID string
	OperatorTopic   string
	OperatorEmail   string
}

// EventsConfig configures the order event stream.
type EventsConfig struct {
	KafkaBrokers []string
	OrderTopic   string
}

// RedisConfig configures the shared Redis instance used for locks and idempotency.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// AuthConfig configures first-party session tokens.
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification.
type OIDCConfig struct {
	JWKSURL   string
	Audience  string
	Audiences map[string]string
	Issuers   []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header    string
	TTL       time.Duration
	KeyPrefix string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface using redacted names.
func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

// RedactedNames returns hashed secret identifiers.
func (e *MissingSecretsError) RedactedNames() []string {
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		out = append(out, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map. Values in the map take precedence over the
// system environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for sm:// and secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "Gateway.SignatureSecret") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// EnvironmentValues returns the effective environment after applying the Load precedence rules
// (.env < OS env < explicit map), so callers can build dependencies such as the secret fetcher
// before calling Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)
	dotEnv, err := readDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(dotEnv))
	for key, value := range dotEnv {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[key] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles configuration from defaults, .env overrides, the environment and Secret Manager.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)

	values, err := EnvironmentValues(opts...)
	if err != nil {
		return Config{}, err
	}
	env := lookup(values)

	cfg := Config{
		Server: ServerConfig{
			Port:            env.stringOr("API_SERVER_PORT", defaultPort),
			ReadTimeout:     env.durationOr("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    env.durationOr("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     env.durationOr("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: env.durationOr("API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.stringOr("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.stringOr("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.stringOr("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.stringOr("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Gateway: GatewayConfig{
			StripeAPIKey:    env.stringOr("API_GATEWAY_STRIPE_API_KEY", ""),
			SignatureSecret: env.stringOr("API_GATEWAY_SIGNATURE_SECRET", ""),
			Currency:        strings.ToUpper(env.stringOr("API_GATEWAY_CURRENCY", defaultCurrency)),
		},
		Payments: PaymentsConfig{
			PendingTimeout: env.durationOr("API_PAYMENTS_PENDING_TIMEOUT", defaultPendingTimeout),
			SweepInterval:  env.durationOr("API_PAYMENTS_SWEEP_INTERVAL", defaultSweepInterval),
			SweepBatch:     env.intOr("API_PAYMENTS_SWEEP_BATCH", defaultSweepBatch),
		},
		Notifications: NotificationsConfig{
			PubSubProjectID: env.stringOr("API_NOTIFICATIONS_PUBSUB_PROJECT_ID", ""),
			OperatorTopic:   env.stringOr("API_NOTIFICATIONS_OPERATOR_TOPIC", defaultOperatorTopic),
			OperatorEmail:   env.stringOr("API_NOTIFICATIONS_OPERATOR_EMAIL", ""),
		},
		Events: EventsConfig{
			KafkaBrokers: env.csv("API_EVENTS_KAFKA_BROKERS"),
			OrderTopic:   env.stringOr("API_EVENTS_ORDER_TOPIC", defaultOrderTopic),
		},
		Redis: RedisConfig{
			Addr:     env.stringOr("API_REDIS_ADDR", defaultRedisAddr),
			Password: env.stringOr("API_REDIS_PASSWORD", ""),
			DB:       env.intOr("API_REDIS_DB", 0),
			LockTTL:  env.durationOr("API_REDIS_LOCK_TTL", defaultLockTTL),
		},
		Auth: AuthConfig{
			JWTSecret: env.stringOr("API_AUTH_JWT_SECRET", ""),
			JWTIssuer: env.stringOr("API_AUTH_JWT_ISSUER", defaultJWTIssuer),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(env.stringOr("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:   env.stringOr("API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:  env.stringOr("API_SECURITY_OIDC_AUDIENCE", ""),
				Audiences: env.mapping("API_SECURITY_OIDC_AUDIENCES"),
				Issuers:   env.csv("API_SECURITY_OIDC_ISSUERS"),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:    env.stringOr("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:       env.durationOr("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			KeyPrefix: env.stringOr("API_IDEMPOTENCY_KEY_PREFIX", defaultIdempotencyKeyPrefix),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Notifications.PubSubProjectID == "" {
		cfg.Notifications.PubSubProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer}
	}
	if cfg.Security.OIDC.Audience == "" {
		cfg.Security.OIDC.Audience = cfg.Security.OIDC.Audiences[cfg.Security.Environment]
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Gateway.StripeAPIKey", &cfg.Gateway.StripeAPIKey},
		{"Gateway.SignatureSecret", &cfg.Gateway.SignatureSecret},
		{"Redis.Password", &cfg.Redis.Password},
		{"Auth.JWTSecret", &cfg.Auth.JWTSecret},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if len(cfg.Gateway.Currency) != 3 {
		missing = append(missing, "Gateway.Currency")
	}
	if cfg.Payments.PendingTimeout <= 0 {
		missing = append(missing, "Payments.PendingTimeout")
	}
	if cfg.Payments.SweepInterval <= 0 {
		missing = append(missing, "Payments.SweepInterval")
	}
	if cfg.Payments.SweepBatch <= 0 {
		missing = append(missing, "Payments.SweepBatch")
	}
	if cfg.Redis.LockTTL <= 0 {
		missing = append(missing, "Redis.LockTTL")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []string
	seen := make(map[string]struct{})
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

// readDotEnv parses the optional .env file. A missing file is not an error.
func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	return values, nil
}

type lookup map[string]string

func (l lookup) stringOr(key, fallback string) string {
	if value := strings.TrimSpace(l[key]); value != "" {
		return value
	}
	return fallback
}

func (l lookup) durationOr(key string, fallback time.Duration) time.Duration {
	if value := strings.TrimSpace(l[key]); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (l lookup) intOr(key string, fallback int) int {
	if value := strings.TrimSpace(l[key]); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func (l lookup) csv(key string) []string {
	raw := strings.TrimSpace(l[key])
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// mapping parses "key=value,key2=value2" with lower-cased keys.
func (l lookup) mapping(key string) map[string]string {
	values := make(map[string]string)
	for _, entry := range l.csv(key) {
		name, value, ok := strings.Cut(entry, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if !ok || name == "" || value == "" {
			continue
		}
		values[name] = value
	}
	return values
}
