package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/avatar-synth/internal/logger"
	"github.com/spigell/avatar-synth/internal/synthesis"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var errAborted = errors.New("aborted from prompt")

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize",
	Short: "Generate a single clip and print its URL",
	Run: func(cmd *cobra.Command, _ []string) {
		synthesize(cmd)
	},
}

func init() {
	rootCmd.AddCommand(synthesizeCmd)

	synthesizeCmd.Flags().StringP("text", "t", "", "text the avatar should say")
	synthesizeCmd.Flags().String("voice", "", "voice id, overrides the configured default")
	synthesizeCmd.Flags().String("voice-provider", "", "voice provider, overrides the configured default")
	synthesizeCmd.Flags().String("presenter", "", "presenter id (clips endpoint)")
	synthesizeCmd.Flags().StringP("provider", "p", "", "generation provider: d-id, veo or replicate")
	synthesizeCmd.Flags().BoolP("interactive", "i", false, "ask for the text and confirm before submitting")

	viper.BindPFlag("provider", synthesizeCmd.Flags().Lookup("provider"))
}

func synthesize(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	req := requestFromFlags(cmd)

	if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
		if err := askForText(req); err != nil {
			if errors.Is(err, errAborted) {
				logger.Info("exiting", zap.String("reason", "got no from prompt"))
				return
			}
			logger.Fatal("reading text from prompt", zap.Error(err))
		}
	}

	synth, err := newSynthesizer(ctx, config, logger)
	if err != nil {
		logger.Fatal("creating a provider", zap.Error(err))
	}

	logger.Info("starting the synthesis",
		zap.String("version", version),
		zap.String("provider", synth.Provider()),
		zap.Int("max_attempts", config.Polling.WithDefaults().MaxAttempts),
		zap.Duration("delay", config.Polling.WithDefaults().Delay),
	)

	result, err := synth.Synthesize(ctx, req)
	if err != nil {
		url, ok := fallback(config, err)
		if !ok {
			logger.Fatal("synthesis failed",
				zap.Stringer("kind", synthesis.KindOf(err)),
				zap.Error(err),
			)
		}

		logger.Warn("synthesis failed, printing the fallback url",
			zap.Stringer("kind", synthesis.KindOf(err)),
			zap.Error(err),
		)
		fmt.Println(url)
		return
	}

	fmt.Println(result.ArtifactURL)
}

func requestFromFlags(cmd *cobra.Command) *synthesis.Request {
	text, _ := cmd.Flags().GetString("text")
	voice, _ := cmd.Flags().GetString("voice")
	voiceProvider, _ := cmd.Flags().GetString("voice-provider")
	presenter, _ := cmd.Flags().GetString("presenter")

	return &synthesis.Request{
		Text: text,
		Voice: synthesis.Voice{
			Provider: voiceProvider,
			ID:       voice,
		},
		Presenter: synthesis.Presenter{
			ID: presenter,
		},
	}
}

// fallback returns the configured placeholder for failures the caller did not cause.
func fallback(config *Config, err error) (string, bool) {
	if config.FallbackURL == "" || synthesis.KindOf(err) == synthesis.KindInvalidInput {
		return "", false
	}

	return config.FallbackURL, true
}

func askForText(req *synthesis.Request) error {
	if strings.TrimSpace(req.Text) == "" {
		textPrompt := promptui.Prompt{
			Label: "Text",
			Validate: func(input string) error {
				if strings.TrimSpace(input) == "" {
					return errors.New("text is required")
				}
				return nil
			},
		}

		text, err := textPrompt.Run()
		if err != nil {
			return err
		}

		req.Text = text
	}

	confirm := promptui.Select{
		Label: fmt.Sprintf("Submit %d characters?", len([]rune(req.Text))),
		Items: []string{PromptYes, PromptNo},
	}

	_, answer, err := confirm.Run()
	if err != nil {
		return err
	}

	if answer != PromptYes {
		return errAborted
	}

	return nil
}
