package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It is also installed as zap's global logger.
var Log = zap.NewNop()

type ctxKey struct{}

// RequestIDKey is the gin context key holding the request ID.
const RequestIDKey = "request_id"

// Initialize sets up the logger for the given environment.
func Initialize(env string) error {
	return InitializeWithWriter(env, nil)
}

// InitializeWithWriter sets up the logger and, when sink is non-nil, tees JSON
// entries into it (the CloudWatch Logs writer in production).
func InitializeWithWriter(env string, sink io.Writer) error {
	var config zap.Config
	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if sink == nil {
		l, err := config.Build()
		if err != nil {
			return err
		}
		install(l)
		return nil
	}

	level := zap.NewAtomicLevelAt(config.Level.Level())
	consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(config.EncoderConfig), zapcore.AddSync(os.Stdout), level)

	jsonConfig := config.EncoderConfig
	jsonConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	sinkCore := zapcore.NewCore(zapcore.NewJSONEncoder(jsonConfig), zapcore.AddSync(sink), level)

	install(zap.New(zapcore.NewTee(consoleCore, sinkCore), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)))
	return nil
}

func install(l *zap.Logger) {
	Log = l
	zap.ReplaceGlobals(l)
}

// Sync flushes buffered entries.
func Sync() {
	_ = Log.Sync()
}

// RequestLogger returns a gin middleware that assigns a request ID and logs
// every completed request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), requestID))

		c.Next()

		Log.Info("Request completed",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// Error logs an error with the request ID from ctx.
func Error(ctx context.Context, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("request_id", RequestID(ctx)))
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	Log.Error(msg, fields...)
}

// Info logs with the request ID from ctx.
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Info(msg, append(fields, zap.String("request_id", RequestID(ctx)))...)
}

// Warn logs with the request ID from ctx.
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Warn(msg, append(fields, zap.String("request_id", RequestID(ctx)))...)
}

// RequestID extracts the request ID set by RequestLogger or WithRequestID.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if ginCtx, ok := ctx.(*gin.Context); ok {
		if v, exists := ginCtx.Get(RequestIDKey); exists {
			if id, ok := v.(string); ok {
				return id
			}
		}
		ctx = ginCtx.Request.Context()
	}
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return "unknown"
}

// WithRequestID returns a context carrying requestID. Workers use the job ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestID)
}
