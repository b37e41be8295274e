package cmd

import (
	"errors"
	"log"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/avatar-synth/internal/synthesis"
)

const (
	app = "avatar-synth"
)

type Config struct {
	Provider    string           `mapstructure:"provider"`
	Polling     synthesis.Policy `mapstructure:"polling"`
	FallbackURL string           `mapstructure:"fallback-url"`
	RateLimit   RateLimitConfig  `mapstructure:"rate-limit"`
	DID         DIDConfig        `mapstructure:"did"`
	Veo         VeoConfig        `mapstructure:"veo"`
	Replicate   ReplicateConfig  `mapstructure:"replicate"`
	Server      ServerConfig     `mapstructure:"server"`
}

type RateLimitConfig struct {
	PerMinute float64 `mapstructure:"per-minute"`
	Burst     int     `mapstructure:"burst"`
}

type DIDConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	APIURL     string `mapstructure:"api-url"`
	// Endpoint is either talks or clips.
	Endpoint  string `mapstructure:"endpoint"`
	EncodeKey *bool  `mapstructure:"encode-key"`
	UserAgent string `mapstructure:"user-agent"`

	Voice struct {
		Provider string `mapstructure:"provider"`
		ID       string `mapstructure:"id"`
	} `mapstructure:"voice"`
	Presenter struct {
		ID              string `mapstructure:"id"`
		SourceURL       string `mapstructure:"source-url"`
		BackgroundColor string `mapstructure:"background-color"`
	} `mapstructure:"presenter"`
	ResultFormat string `mapstructure:"result-format"`
}

type VeoConfig struct {
	APIKey          string `mapstructure:"api-key"`
	APIKeyFile      string `mapstructure:"api-key-file"`
	Model           string `mapstructure:"model"`
	BaseURL         string `mapstructure:"base-url"`
	AspectRatio     string `mapstructure:"aspect-ratio"`
	DurationSeconds int32  `mapstructure:"duration-seconds"`
	NegativePrompt  string `mapstructure:"negative-prompt"`
}

type ReplicateConfig struct {
	APIToken     string         `mapstructure:"api-token"`
	APITokenFile string         `mapstructure:"api-token-file"`
	Model        string         `mapstructure:"model"`
	BaseURL      string         `mapstructure:"base-url"`
	TextInput    string         `mapstructure:"text-input"`
	VoiceInput   string         `mapstructure:"voice-input"`
	Input        map[string]any `mapstructure:"input"`
}

type ServerConfig struct {
	Listen         string   `mapstructure:"listen"`
	AllowedOrigins []string `mapstructure:"allowed-origins"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "avatar-synth turns text into talking-avatar video clips using hosted generation providers",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

var envBindings = map[string]string{
	"did.api-key":         "D_ID_API_KEY",
	"did.api-url":         "D_ID_API_URL",
	"veo.api-key":         "GEMINI_API_KEY",
	"replicate.api-token": "REPLICATE_API_TOKEN",
}

func init() {
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	setDefaults(viper.GetViper())

	viper.SetEnvPrefix("AVATAR_SYNTH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is avatar-synth.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "d-id")
	v.SetDefault("polling.max-attempts", synthesis.DefaultMaxAttempts)
	v.SetDefault("polling.delay", synthesis.DefaultDelay)
	v.SetDefault("did.endpoint", "talks")
	v.SetDefault("server.listen", ":8080")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Everything can come from the environment, so only an explicit or broken config is fatal.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
