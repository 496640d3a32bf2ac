// Package config loads the application configuration bundle described in
// spec.md §6. It follows the teacher repo's viper + validator pattern
// (api/integration-api/config/config.go): read a .env file, overlay
// environment variables, then validate the unmarshalled struct.
package config

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// TelephonyConfig holds provider credentials and the caller-identity
// fallback policy used by the Telephony Adapter (C3).
type TelephonyConfig struct {
	AccountSid      string `mapstructure:"account_sid" validate:"required"`
	AuthToken       string `mapstructure:"auth_token" validate:"required"`
	UseAlphaLabel   bool   `mapstructure:"use_alpha_label"`
	AlphaLabel      string `mapstructure:"alpha_label" validate:"required_if=UseAlphaLabel true,max=11"`
	FallbackPhone   string `mapstructure:"fallback_phone" validate:"required_if=UseAlphaLabel true"`
	OwnedPhone      string `mapstructure:"owned_phone"`
	RecordingBasicUser string `mapstructure:"recording_basic_user"`
	RecordingBasicPass string `mapstructure:"recording_basic_pass"`
}

// AIConfig holds credentials/toggles for the synthesis, recognition and
// reasoning capability clients (C10).
type AIConfig struct {
	ReasoningProvider  string `mapstructure:"reasoning_provider"` // "anthropic" | "openai"
	AnthropicAPIKey    string `mapstructure:"anthropic_api_key"`
	OpenAIAPIKey       string `mapstructure:"openai_api_key"`
	DeepgramAPIKey     string `mapstructure:"deepgram_api_key"`
	GoogleTTSCredsJSON string `mapstructure:"google_tts_creds_json"`
}

// DialogScoringConfig externalises the dynamic-question-selection weights
// from spec.md §4.5/§9 so they can be tuned without a binary release.
type DialogScoringConfig struct {
	FreeTextScore        int      `mapstructure:"free_text_score"`
	MultipleChoiceScore  int      `mapstructure:"multiple_choice_score"`
	YesNoScore           int      `mapstructure:"yes_no_score"`
	ContextSlotScore     int      `mapstructure:"context_slot_score"`
	FamilyKeywordScore   int      `mapstructure:"family_keyword_score"`
	RelevantContextScore int      `mapstructure:"relevant_context_score"`
	AnsweredPenalty      int      `mapstructure:"answered_penalty"`
	FamilyKeywords       []string `mapstructure:"family_keywords"`
	ShortPromptChars1Min int      `mapstructure:"short_prompt_chars_1min"`
	ShortPromptBonus1Min int      `mapstructure:"short_prompt_bonus_1min"`
	LongPromptPenalty1Min int     `mapstructure:"long_prompt_penalty_1min"`
	ShortPromptChars2Min int      `mapstructure:"short_prompt_chars_2min"`
	ShortPromptBonus2Min int      `mapstructure:"short_prompt_bonus_2min"`
}

// Limits mirrors spec.md §6's "limits" configuration bundle.
type Limits struct {
	MaxRecordingDurationSeconds    int `mapstructure:"max_recording_duration_seconds"`
	MaxConversationDurationSeconds int `mapstructure:"max_conversation_duration_seconds"`
	MaxCallsPerHour                int `mapstructure:"max_calls_per_hour"`
	MaxCallsPerDay                 int `mapstructure:"max_calls_per_day"`
	MaxCallsPerMonth               int `mapstructure:"max_calls_per_month"`
}

// PostgresConfig is the connection bundle for the credential/call-registry
// stores.
type PostgresConfig struct {
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"required"`
	DBName             string `mapstructure:"db_name" validate:"required"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxOpenConnections int    `mapstructure:"max_open_connection"`
	MaxIdleConnections int    `mapstructure:"max_ideal_connection"`
}

// RedisConfig is the connection bundle for the Call Registry's
// correlation buffer (C2).
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AppConfig is the single immutable configuration value passed to every
// component constructor (spec.md §9: "no module-level mutable state").
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`

	PublicBaseURL string `mapstructure:"public_base_url" validate:"required"`
	RecordingsDir string `mapstructure:"recordings_dir" validate:"required"`
	TempDir       string `mapstructure:"temp_dir" validate:"required"`
	ClockZone     string `mapstructure:"clock_zone" validate:"required"`
	FlowConfigPath string `mapstructure:"flow_config_path" validate:"required"`

	AllowedEmailDomains []string `mapstructure:"allowed_email_domains"`
	BlockedEmailDomains []string `mapstructure:"blocked_email_domains"`

	UpstreamURL    string `mapstructure:"upstream_url" validate:"required"`
	UpstreamSecret string `mapstructure:"upstream_secret" validate:"required"`

	Postgres PostgresConfig      `mapstructure:"postgres" validate:"required"`
	Redis    RedisConfig         `mapstructure:"redis" validate:"required"`
	Telephony TelephonyConfig    `mapstructure:"telephony" validate:"required"`
	AI       AIConfig            `mapstructure:"ai"`
	Scoring  DialogScoringConfig `mapstructure:"scoring"`
	Limits   Limits              `mapstructure:"limits"`
}

// InitConfig wires up viper the way api/integration-api/config/config.go
// does: a "__" key delimiter so nested env vars like POSTGRES__HOST work,
// a .env file read from ENV_PATH if set, and a default table.
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefaults(vConfig)

	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("reading configuration from environment variables only: %v", err)
	}

	return vConfig, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "call-orchestrator")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CLOCK_ZONE", "UTC")
	v.SetDefault("RECORDINGS_DIR", "./recordings")
	v.SetDefault("TEMP_DIR", "./tmp")
	v.SetDefault("FLOW_CONFIG_PATH", "./config/conversation_flow.json")

	v.SetDefault("POSTGRES__HOST", "localhost")
	v.SetDefault("POSTGRES__PORT", 5432)
	v.SetDefault("POSTGRES__SSL_MODE", "disable")
	v.SetDefault("POSTGRES__MAX_OPEN_CONNECTION", 10)
	v.SetDefault("POSTGRES__MAX_IDEAL_CONNECTION", 10)

	v.SetDefault("REDIS__ADDR", "localhost:6379")
	v.SetDefault("REDIS__DB", 0)

	v.SetDefault("TELEPHONY__USE_ALPHA_LABEL", false)

	v.SetDefault("AI__REASONING_PROVIDER", "anthropic")

	v.SetDefault("SCORING__FREE_TEXT_SCORE", 10)
	v.SetDefault("SCORING__MULTIPLE_CHOICE_SCORE", 8)
	v.SetDefault("SCORING__YES_NO_SCORE", 6)
	v.SetDefault("SCORING__CONTEXT_SLOT_SCORE", 5)
	v.SetDefault("SCORING__FAMILY_KEYWORD_SCORE", 4)
	v.SetDefault("SCORING__RELEVANT_CONTEXT_SCORE", 3)
	v.SetDefault("SCORING__ANSWERED_PENALTY", -100)
	v.SetDefault("SCORING__SHORT_PROMPT_CHARS_1MIN", 100)
	v.SetDefault("SCORING__SHORT_PROMPT_BONUS_1MIN", 10)
	v.SetDefault("SCORING__LONG_PROMPT_PENALTY_1MIN", -10)
	v.SetDefault("SCORING__SHORT_PROMPT_CHARS_2MIN", 150)
	v.SetDefault("SCORING__SHORT_PROMPT_BONUS_2MIN", 8)

	v.SetDefault("LIMITS__MAX_RECORDING_DURATION_SECONDS", 60)
	v.SetDefault("LIMITS__MAX_CONVERSATION_DURATION_SECONDS", 300)
	v.SetDefault("LIMITS__MAX_CALLS_PER_HOUR", 10)
	v.SetDefault("LIMITS__MAX_CALLS_PER_DAY", 50)
	v.SetDefault("LIMITS__MAX_CALLS_PER_MONTH", 1000)
}

// GetApplicationConfig unmarshals and validates the application config,
// aborting startup (spec.md §6) on any required value missing.
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
