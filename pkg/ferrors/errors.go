// Package ferrors defines the typed error-code taxonomy shared by every
// fabric component (loops, mixer, registry, interconnect).
package ferrors

import "fmt"

// Code классифицирует ошибки ядра фабрики по категориям — по аналогии с
// MediaErrorCode софтфона. Каждая категория объявлена от своей тысячи (1000,
// 2000, …, 9000), но iota считает через весь блок, поэтому первый код
// категории равен её тысяче плюс число кодов, объявленных до неё
// (например, CodeSocketJoinFailed = 2002, CodeSessionUnknown = 9020).
type Code int

const (
	// Ошибки конфигурации
	CodeConfigInvalid Code = iota + 1000
	CodeConfigMissingField

	// Ошибки сокетов
	CodeSocketJoinFailed Code = iota + 2000
	CodeSocketSendFailed
	CodeSocketClosed

	// Нарушения протокола
	CodeProtocolUnknownEvent Code = iota + 3000
	CodeProtocolMalformed
	CodeProtocolUnexpectedState

	// Ошибки аутентификации
	CodeAuthFailure Code = iota + 4000

	// Исчерпание ресурсов
	CodeResourceNoFreeSlot Code = iota + 5000
	CodeResourceBufferFull
	CodeResourceSlotOutOfRange

	// Ошибки криптографии/handshake
	CodeCryptoHandshakeFailed Code = iota + 6000
	CodeCryptoFingerprintMismatch
	CodeCryptoKeyDerivationFailed

	// Ошибки кодека
	CodeCodecEncodeFailed Code = iota + 7000
	CodeCodecDecodeFailed
	CodeCodecUnsupported

	// Таймауты
	CodeTimeoutCallback Code = iota + 8000
	CodeTimeoutHandshake

	// Неизвестная сессия
	CodeSessionUnknown Code = iota + 9000
)

// String возвращает имя кода ошибки, используемое в логах и в wire-ответах.
func (c Code) String() string {
	switch c {
	case CodeConfigInvalid:
		return "ConfigInvalid"
	case CodeConfigMissingField:
		return "ConfigMissingField"
	case CodeSocketJoinFailed:
		return "SocketJoinFailed"
	case CodeSocketSendFailed:
		return "SocketSendFailed"
	case CodeSocketClosed:
		return "SocketClosed"
	case CodeProtocolUnknownEvent:
		return "ProtocolUnknownEvent"
	case CodeProtocolMalformed:
		return "ProtocolMalformed"
	case CodeProtocolUnexpectedState:
		return "ProtocolUnexpectedState"
	case CodeAuthFailure:
		return "AuthFailure"
	case CodeResourceNoFreeSlot:
		return "ResourceNoFreeSlot"
	case CodeResourceBufferFull:
		return "ResourceBufferFull"
	case CodeResourceSlotOutOfRange:
		return "ResourceSlotOutOfRange"
	case CodeCryptoHandshakeFailed:
		return "CryptoHandshakeFailed"
	case CodeCryptoFingerprintMismatch:
		return "CryptoFingerprintMismatch"
	case CodeCryptoKeyDerivationFailed:
		return "CryptoKeyDerivationFailed"
	case CodeCodecEncodeFailed:
		return "CodecEncodeFailed"
	case CodeCodecDecodeFailed:
		return "CodecDecodeFailed"
	case CodeCodecUnsupported:
		return "CodecUnsupported"
	case CodeTimeoutCallback:
		return "TimeoutCallback"
	case CodeTimeoutHandshake:
		return "TimeoutHandshake"
	case CodeSessionUnknown:
		return "SessionUnknown"
	default:
		return "Unknown"
	}
}

// WireCode maps a Code onto the §6.1 wire error-code names. Several Go-level
// kinds collapse onto the same wire name, since the wire grammar is coarser
// than the internal taxonomy.
func (c Code) WireCode() string {
	switch {
	case c >= 1000 && c < 2000:
		return "ParameterError"
	case c >= 3000 && c < 4000:
		return "ProcessingError"
	case c == CodeAuthFailure:
		return "AuthFailure"
	case c >= 5000 && c < 6000:
		return "NoResource"
	case c >= 6000 && c < 7000:
		return "ProcessingError"
	case c >= 7000 && c < 8000:
		return "CodecMismatch"
	case c >= 8000 && c < 9000:
		return "ProcessingError"
	case c >= 9000:
		return "SessionUnknown"
	default:
		return "ProcessingError"
	}
}

// Error wraps an inner error with a typed Code, matching the fmt.Errorf(%w)
// wrapping convention used throughout the fabric.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error, mirroring fmt.Errorf's %w wrapping but keeping the
// code queryable by callers (errors.As).
func New(op string, code Code, err error) *Error {
	return &Error{Op: op, Code: code, Err: err}
}
