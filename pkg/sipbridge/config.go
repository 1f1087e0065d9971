package sipbridge

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// BridgeConfig carries everything the bridge needs: realtime endpoint and
// session behavior on the AI side, VAD and poller tuning on the call side.
type BridgeConfig struct {
	APIKey           string            `json:"-"`
	RealtimeEndpoint string            `json:"realtime_endpoint"`
	Model            string            `json:"model"`
	Instructions     string            `json:"instructions"`
	Voice            string            `json:"voice"`
	Headers          map[string]string `json:"headers,omitempty"`

	// Telephony-side audio is 16 kHz PCM16 mono, AI-side is 24 kHz.
	// Callers of the WAV helpers must pass the rate for their side.
	CallSampleRate int `json:"call_sample_rate"`
	AISampleRate   int `json:"ai_sample_rate"`
	Channels       int `json:"channels"`
	BitsPerSample  int `json:"bits_per_sample"`

	VADThreshold    int           `json:"vad_threshold"`
	SilenceWindow   time.Duration `json:"silence_window"`
	PollInterval    time.Duration `json:"poll_interval"`
	CommitOnSilence bool          `json:"commit_on_silence"`

	ConnectTimeout time.Duration `json:"connect_timeout"`
	PlaybackGrace  time.Duration `json:"playback_grace"`
	ScratchDir     string        `json:"scratch_dir"`

	UseGatewayToken bool `json:"use_gateway_token"`

	GreetingText   string `json:"greeting_text"`
	DebugWebsocket bool   `json:"debug_websocket"`
}

func NewBridgeConfig() *BridgeConfig {
	c := &BridgeConfig{
		RealtimeEndpoint: "wss://api.openai.com/v1/realtime",
		Model:            "gpt-realtime-mini",
		Instructions:     "Phone AI. Brief, friendly responses.",
		Voice:            "alloy",
		Headers:          make(map[string]string),
		CallSampleRate:   16000,
		AISampleRate:     24000,
		Channels:         1,
		BitsPerSample:    16,
		VADThreshold:     1000,
		SilenceWindow:    500 * time.Millisecond,
		PollInterval:     120 * time.Millisecond,
		ConnectTimeout:   10 * time.Second,
		PlaybackGrace:    500 * time.Millisecond,
		ScratchDir:       os.TempDir(),
		GreetingText:     "Greet caller, ask how to help.",
	}

	c.loadFromEnv()

	return c
}

func (c *BridgeConfig) loadFromEnv() {
	// Load .env if exists
	_ = godotenv.Load()

	c.APIKey = os.Getenv("OPENAI_API_KEY")

	if endpoint := os.Getenv("BRIDGE_REALTIME_ENDPOINT"); endpoint != "" {
		c.RealtimeEndpoint = endpoint
	}
	if model := os.Getenv("BRIDGE_REALTIME_MODEL"); model != "" {
		c.Model = model
	}
	if instructions := os.Getenv("BRIDGE_INSTRUCTIONS"); instructions != "" {
		c.Instructions = instructions
	}
	if voice := os.Getenv("BRIDGE_VOICE"); voice != "" {
		c.Voice = voice
	}
	if greeting := os.Getenv("BRIDGE_GREETING_TEXT"); greeting != "" {
		c.GreetingText = greeting
	}
	if dir := os.Getenv("BRIDGE_SCRATCH_DIR"); dir != "" {
		c.ScratchDir = dir
	}

	if threshold := os.Getenv("BRIDGE_VAD_THRESHOLD"); threshold != "" {
		if val, err := strconv.Atoi(threshold); err == nil {
			c.VADThreshold = val
		}
	}
	if window := os.Getenv("BRIDGE_SILENCE_WINDOW_MS"); window != "" {
		if val, err := strconv.Atoi(window); err == nil {
			c.SilenceWindow = time.Duration(val) * time.Millisecond
		}
	}
	if interval := os.Getenv("BRIDGE_POLL_INTERVAL_MS"); interval != "" {
		if val, err := strconv.Atoi(interval); err == nil {
			c.PollInterval = time.Duration(val) * time.Millisecond
		}
	}
	if timeout := os.Getenv("BRIDGE_CONNECT_TIMEOUT_MS"); timeout != "" {
		if val, err := strconv.Atoi(timeout); err == nil {
			c.ConnectTimeout = time.Duration(val) * time.Millisecond
		}
	}

	c.CommitOnSilence = os.Getenv("BRIDGE_COMMIT_ON_SILENCE") == "true"
	c.UseGatewayToken = os.Getenv("BRIDGE_USE_GATEWAY_TOKEN") == "true"
	c.DebugWebsocket = os.Getenv("BRIDGE_DEBUG_WEBSOCKET") == "true"
}

// Validate returns list of issues
func (c *BridgeConfig) Validate() []string {
	issues := []string{}

	if c.APIKey == "" {
		issues = append(issues, "OPENAI_API_KEY environment variable not set")
	}
	if !strings.HasPrefix(c.RealtimeEndpoint, "ws") {
		issues = append(issues, "Invalid realtime endpoint format (must be ws:// or wss://)")
	}
	if c.CallSampleRate <= 0 || c.AISampleRate <= 0 {
		issues = append(issues, "Sample rates must be positive")
	}
	if c.Channels <= 0 {
		issues = append(issues, "Channel count must be positive")
	}
	if c.BitsPerSample != 16 {
		issues = append(issues, fmt.Sprintf("Unsupported bits per sample: %d (only PCM16)", c.BitsPerSample))
	}
	if c.VADThreshold < 0 || c.VADThreshold > 32767 {
		issues = append(issues, fmt.Sprintf("VAD threshold out of range: %d", c.VADThreshold))
	}
	if c.PollInterval <= 0 {
		issues = append(issues, "Poll interval must be positive")
	}
	if c.SilenceWindow < 0 {
		issues = append(issues, "Silence window must not be negative")
	}
	if c.ConnectTimeout <= 0 {
		issues = append(issues, "Connect timeout must be positive")
	}

	return issues
}

func (c *BridgeConfig) PrintConfig() {
	fmt.Println("📞 SIP Bridge Configuration")
	fmt.Println("==================================================")

	if c.APIKey != "" {
		fmt.Printf("API Key: %s...\n", c.APIKey[:min(len(c.APIKey), 8)])
	} else {
		fmt.Println("API Key: NOT SET")
	}

	fmt.Printf("Realtime Endpoint: %s\n", c.RealtimeEndpoint)
	fmt.Printf("Model: %s\n", c.Model)
	fmt.Printf("Voice: %s\n", c.Voice)
	fmt.Printf("Call Sample Rate: %d Hz\n", c.CallSampleRate)
	fmt.Printf("AI Sample Rate: %d Hz\n", c.AISampleRate)
	fmt.Printf("VAD Threshold: %d\n", c.VADThreshold)
	fmt.Printf("Silence Window: %s\n", c.SilenceWindow)
	fmt.Printf("Poll Interval: %s\n", c.PollInterval)
	fmt.Printf("Commit On Silence: %t\n", c.CommitOnSilence)
	fmt.Printf("Connect Timeout: %s\n", c.ConnectTimeout)
	fmt.Printf("Scratch Dir: %s\n", c.ScratchDir)
	fmt.Printf("Use Gateway Token: %t\n", c.UseGatewayToken)
	fmt.Printf("Debug WebSocket: %t\n", c.DebugWebsocket)
}
