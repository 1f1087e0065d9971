package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rojolang/sipbridge-go/pkg/sipbridge"
	"github.com/spf13/cobra"
)

var (
	verbose  bool
	endpoint string
	model    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sipbridge",
		Short: "SIP call to realtime-AI audio bridge",
		Long:  "Bridges live telephone calls to a streaming conversational-AI backend",
	}

	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "Realtime WebSocket endpoint URL")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "Realtime model name")

	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(toneCmd())
	rootCmd.AddCommand(greetingCmd())
	rootCmd.AddCommand(simulateCmd())

	if err := rootCmd.Execute(); err != nil {
		sipbridge.GetGlobalLogger().WithError(err).Fatal("CLI execution failed")
	}
}

func loadConfig() *sipbridge.BridgeConfig {
	_ = godotenv.Load()

	config := sipbridge.NewBridgeConfig()
	if endpoint != "" {
		config.RealtimeEndpoint = endpoint
	}
	if model != "" {
		config.Model = model
	}
	if verbose {
		config.DebugWebsocket = true
		sipbridge.SetGlobalLogger(sipbridge.NewBridgeLogger(&sipbridge.LogConfig{
			Level:  sipbridge.DebugLevel,
			Pretty: true,
			Output: os.Stdout,
			Fields: map[string]interface{}{},
		}))
	}
	return config
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show and validate the bridge configuration",
		Run: func(cmd *cobra.Command, args []string) {
			config := loadConfig()
			config.PrintConfig()

			issues := config.Validate()
			if len(issues) == 0 {
				fmt.Println("\nConfiguration OK")
				return
			}
			fmt.Println("\nConfiguration issues:")
			for _, issue := range issues {
				fmt.Printf("  - %s\n", issue)
			}
			os.Exit(1)
		},
	}
}

func toneCmd() *cobra.Command {
	var (
		frequency float64
		durMs     int
		out       string
	)

	cmd := &cobra.Command{
		Use:   "tone",
		Short: "Generate a test tone WAV file",
		Long:  "Synthesizes a sine tone in the telephony sample rate, like the connection beep played to callers",
		Run: func(cmd *cobra.Command, args []string) {
			config := loadConfig()
			if out == "" {
				out = filepath.Join(config.ScratchDir, "test_tone.wav")
			}

			wav := sipbridge.GenerateTone(frequency, time.Duration(durMs)*time.Millisecond, config.CallSampleRate, 0.6)
			if err := os.WriteFile(out, wav, 0644); err != nil {
				sipbridge.GetGlobalLogger().WithError(err).Fatal("Failed to write tone file")
			}

			fmt.Printf("Wrote %d Hz tone (%d ms, %s) to %s\n", int(frequency), durMs, sipbridge.ReadWAVDuration(wav), out)
		},
	}

	cmd.Flags().Float64VarP(&frequency, "frequency", "f", 440, "Tone frequency in Hz")
	cmd.Flags().IntVarP(&durMs, "duration", "d", 250, "Tone duration in milliseconds")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file path")
	return cmd
}
