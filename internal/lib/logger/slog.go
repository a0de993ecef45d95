package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New создаёт и настраивает новый экземпляр slog.Logger, который пишет в stdout
// уровень и формат (text/json) определяются строковыми параметрами
func New(levelStr, format string) *slog.Logger {
	return NewWithWriter(os.Stdout, levelStr, format)
}

// NewWithWriter — то же, что New, но с произвольным приёмником
// CLI пишет логи в stderr, чтобы не смешивать их с выводом команд
func NewWithWriter(w io.Writer, levelStr, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: true, // нужно, чтобы видеть файл и строку, откуда был вызов лога
		Level:     ParseLevel(levelStr),
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		// обработчик для продакшена
		handler = slog.NewJSONHandler(w, opts)
	default:
		// обработчик для локальной разработки
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// Discard возвращает логгер, который ничего не пишет (для тестов)
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel преобразует строковый уровень из конфига в slog.Level
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		// по умолчанию используем INFO, если в конфиге указано что-то некорректное
		return slog.LevelInfo
	}
}
