package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rojolang/sipbridge-go/pkg/sipbridge"
	"github.com/spf13/cobra"
)

func simulateCmd() *cobra.Command {
	var (
		callerWav string
		duration  float64
		outDir    string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate a call through the bridge",
		Long: "Drives the full bridge pipeline without a SIP stack: a caller WAV file " +
			"is fed into the recording at real-time pace, and AI response audio is " +
			"written to an output directory instead of call media",
		Run: func(cmd *cobra.Command, args []string) {
			config := loadConfig()
			logger := sipbridge.GetGlobalLogger()

			if issues := config.Validate(); len(issues) > 0 {
				for _, issue := range issues {
					logger.Error(issue)
				}
				logger.Fatal("Configuration invalid")
			}

			if outDir == "" {
				outDir = filepath.Join(config.ScratchDir, "sipbridge_sim")
			}
			if err := os.MkdirAll(outDir, 0755); err != nil {
				logger.WithError(err).Fatal("Cannot create output directory")
			}

			registry := sipbridge.NewSessionRegistry(logger)
			controller := sipbridge.NewCallController(registry, &simFactory{outDir: outDir, logger: logger}, config, logger)

			callID := "sim-" + uuid.NewString()[:8]
			media := &simMediaStream{callerWav: callerWav, logger: logger}

			controller.OnCallState(callID, "CONFIRMED")
			controller.OnCallMedia(callID, []sipbridge.MediaStream{media})

			fmt.Printf("Simulated call %s running for %.1fs (Ctrl-C to hang up early)...\n", callID, duration)

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			select {
			case <-time.After(time.Duration(duration * float64(time.Second))):
			case <-sigs:
				fmt.Println("Hanging up...")
			}

			controller.OnCallState(callID, "DISCONNECTED")
			registry.TeardownAll()
			fmt.Printf("Call ended. AI audio (if any) is under %s\n", outDir)
		},
	}

	cmd.Flags().StringVarP(&callerWav, "caller-wav", "c", "", "WAV file used as the caller's voice (16 kHz PCM16 mono)")
	cmd.Flags().Float64VarP(&duration, "duration", "d", 30.0, "Simulated call length in seconds")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "Directory for AI response audio")
	return cmd
}

// simMediaStream stands in for one call audio stream. Transmitting to a
// recorder feeds the caller WAV into the recording file at real-time
// pace, the same way live media would make it grow.
type simMediaStream struct {
	callerWav string
	logger    *sipbridge.BridgeLogger
}

func (m *simMediaStream) StartTransmitTo(sink sipbridge.AudioSink) error {
	recorder, ok := sink.(*simRecorder)
	if !ok {
		return nil
	}
	if m.callerWav == "" {
		m.logger.Info("No caller WAV provided; simulated caller stays silent")
		return nil
	}
	go m.feed(recorder)
	return nil
}

func (m *simMediaStream) feed(recorder *simRecorder) {
	data, err := os.ReadFile(m.callerWav)
	if err != nil {
		m.logger.WithError(err).Error("Cannot read caller WAV")
		return
	}
	if len(data) <= sipbridge.WAVHeaderSize {
		return
	}
	pcm := data[sipbridge.WAVHeaderSize:]

	// 16 kHz PCM16 mono: 3200 bytes per 100 ms.
	const chunk = 3200
	for offset := 0; offset < len(pcm); offset += chunk {
		if recorder.stopped() {
			return
		}
		end := offset + chunk
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := recorder.append(pcm[offset:end]); err != nil {
			m.logger.WithError(err).Error("Failed to append caller audio")
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

type simFactory struct {
	outDir string
	logger *sipbridge.BridgeLogger
}

func (f *simFactory) CreateRecorder(path string) (sipbridge.Recorder, error) {
	header := sipbridge.BuildWAVHeader(0, 16000, 1, 16)
	if err := os.WriteFile(path, header, 0644); err != nil {
		return nil, err
	}
	return &simRecorder{path: path}, nil
}

func (f *simFactory) CreatePlayer(path string, loop bool) (sipbridge.Player, error) {
	return &simPlayer{path: path, outDir: f.outDir, logger: f.logger}, nil
}

type simRecorder struct {
	path string
	done atomic.Bool
}

func (r *simRecorder) Path() string { return r.path }

func (r *simRecorder) Stop() error {
	r.done.Store(true)
	return nil
}

func (r *simRecorder) stopped() bool { return r.done.Load() }

func (r *simRecorder) append(pcm []byte) error {
	f, err := os.OpenFile(r.path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(pcm)
	return err
}

// simPlayer copies the played file into the output directory so the AI's
// side of the conversation can be listened to afterwards.
type simPlayer struct {
	path   string
	outDir string
	logger *sipbridge.BridgeLogger
}

func (p *simPlayer) StartTransmitTo(stream sipbridge.MediaStream) error {
	src, err := os.Open(p.path)
	if err != nil {
		return err
	}
	defer src.Close()

	out := filepath.Join(p.outDir, fmt.Sprintf("play_%d_%s", time.Now().UnixMilli(), filepath.Base(p.path)))
	dst, err := os.Create(out)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	p.logger.Infof("Playback captured to %s", out)
	return nil
}

func (p *simPlayer) Stop() error { return nil }
