package main

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/rojolang/sipbridge-go/pkg/sipbridge"
	"github.com/spf13/cobra"
)

func greetingCmd() *cobra.Command {
	var timeoutSecs float64

	cmd := &cobra.Command{
		Use:   "greeting",
		Short: "Pre-generate the cached AI greeting",
		Long: "Connects to the realtime backend, requests the greeting once, and " +
			"caches the audio so the first real call does not wait for generation",
		Run: func(cmd *cobra.Command, args []string) {
			config := loadConfig()
			logger := sipbridge.GetGlobalLogger()

			if issues := config.Validate(); len(issues) > 0 {
				for _, issue := range issues {
					logger.Error(issue)
				}
				logger.Fatal("Configuration invalid")
			}

			client := sipbridge.NewRealtimeClient(config, logger)

			var buf bytes.Buffer
			done := make(chan struct{}, 1)
			client.AddEventHandler(func(event sipbridge.RealtimeEvent) {
				switch event.Type {
				case sipbridge.EventAudioDelta:
					buf.Write(event.Audio)
				case sipbridge.EventResponseDone:
					select {
					case done <- struct{}{}:
					default:
					}
				case sipbridge.EventAPIError:
					logger.Errorf("Realtime error during greeting generation: %s", event.Detail)
				}
			})

			if err := client.Connect(); err != nil {
				logger.WithError(err).Fatal("Could not connect to realtime backend")
			}
			defer client.Disconnect()

			if !client.SendText(config.GreetingText) {
				logger.Fatal("Could not request greeting")
			}

			select {
			case <-done:
			case <-time.After(time.Duration(timeoutSecs * float64(time.Second))):
				logger.Fatal("Timed out waiting for greeting audio")
			}

			if buf.Len() == 0 {
				logger.Fatal("Greeting response carried no audio")
			}

			wav := sipbridge.BuildWAVFile(buf.Bytes(), config.AISampleRate, config.Channels, config.BitsPerSample)
			path := sipbridge.GreetingCachePath(config)
			if err := os.WriteFile(path, wav, 0644); err != nil {
				logger.WithError(err).Fatal("Could not write greeting cache")
			}

			fmt.Printf("Cached greeting (%s of audio) at %s\n", sipbridge.ReadWAVDuration(wav), path)
		},
	}

	cmd.Flags().Float64VarP(&timeoutSecs, "timeout", "t", 20.0, "Seconds to wait for the greeting response")
	return cmd
}
