package sipbridge

// Error codes as constants
const (
	ErrCodeConnectionFailed = "CONNECTION_FAILED"
	ErrCodeConnectTimeout   = "CONNECT_TIMEOUT"
	ErrCodeNotConnected     = "NOT_CONNECTED"
	ErrCodeWebSocket        = "WEBSOCKET_ERROR"
	ErrCodeAPIError         = "API_ERROR"
	ErrCodeRecorder         = "RECORDER_ERROR"
	ErrCodePlayback         = "PLAYBACK_ERROR"
	ErrCodeCapture          = "CAPTURE_ERROR"
	ErrCodeWAVFormat        = "WAV_FORMAT_ERROR"
	ErrCodeConfigInvalid    = "CONFIG_INVALID"
	ErrCodeTokenFailed      = "TOKEN_GENERATION_FAILED"
	ErrCodeUnknown          = "UNKNOWN_ERROR"
)

func NewConnectionError(message string) *BridgeError {
	return NewBridgeError(message, ErrCodeConnectionFailed)
}

func NewTimeoutError(message string) *BridgeError {
	return NewBridgeError(message, ErrCodeConnectTimeout)
}

func NewPlaybackError(message string) *BridgeError {
	return NewBridgeError(message, ErrCodePlayback)
}

func NewCaptureError(message string) *BridgeError {
	return NewBridgeError(message, ErrCodeCapture)
}

func NewConfigError(message string) *BridgeError {
	return NewBridgeError(message, ErrCodeConfigInvalid)
}

// WrapError converts any error into a BridgeError while keeping the
// original reachable through Unwrap.
func WrapError(err error, code string) *BridgeError {
	if err == nil {
		return nil
	}
	berr := NewBridgeError(err.Error(), code)
	berr.err = err
	return berr
}

func (e *BridgeError) AddDetail(key string, value interface{}) *BridgeError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func IsErrorCode(err *BridgeError, code string) bool {
	if err == nil {
		return false
	}
	return err.Code == code
}
