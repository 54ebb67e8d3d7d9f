// Package types defines core data types and error codes shared across texguard.
package types

import (
	"errors"
	"time"
)

// Config 应用配置
type Config struct {
	OpenAIAPIKey   string `json:"openai_api_key"`
	OpenAIBaseURL  string `json:"openai_base_url"` // OpenAI 兼容 API 的 Base URL
	OpenAIModel    string `json:"openai_model"`
	SourceLanguage string `json:"source_language"` // BCP 47, e.g. "en"
	TargetLanguage string `json:"target_language"` // BCP 47, e.g. "es"
	RulesFile      string `json:"rules_file"`      // optional YAML rule list; empty means built-in rules
	WorkDirectory  string `json:"work_directory"`
	Timeout        string `json:"timeout"`     // per-request timeout, time.ParseDuration syntax
	MaxRetries     int    `json:"max_retries"` // attempts per paragraph
	LogFile        string `json:"log_file"`
	LogLevel       string `json:"log_level"`
	MetricsFile    string `json:"metrics_file"` // Prometheus textfile output; empty disables
}

// RequestTimeout parses Timeout, falling back to def when it is empty or invalid.
func (c *Config) RequestTimeout(def time.Duration) time.Duration {
	if c == nil || c.Timeout == "" {
		return def
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Stage 处理阶段
type Stage string

const (
	StageEncode    Stage = "encode"
	StageTranslate Stage = "translate"
	StageDecode    Stage = "decode"
)

// ErrorCode 错误代码枚举
type ErrorCode string

const (
	ErrNetwork      ErrorCode = "NETWORK_ERROR"
	ErrFileNotFound ErrorCode = "FILE_NOT_FOUND"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrAPICall      ErrorCode = "API_CALL_ERROR"
	ErrAPIRateLimit ErrorCode = "API_RATE_LIMIT"
	ErrConfig       ErrorCode = "CONFIG_ERROR"
	ErrMapping      ErrorCode = "MAPPING_ERROR"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
	ErrTranslation  ErrorCode = "TRANSLATION_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// IsCode reports whether any AppError in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}
