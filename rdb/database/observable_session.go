package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hatlonely/rdbx/log/logger"
	"github.com/hatlonely/rdbx/rdb/statement"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ObservableOptions struct {
	// EnableMetrics 是否启用指标收集
	EnableMetrics bool `cfg:"enableMetrics" def:"true"`

	// EnableLogging 是否启用日志记录
	EnableLogging bool `cfg:"enableLogging" def:"true"`

	// EnableTracing 是否启用分布式追踪
	EnableTracing bool `cfg:"enableTracing" def:"false"`

	// Name 组件名称，作为指标名前缀、日志的 component 字段和 span 的 component 属性
	Name string `cfg:"name" def:"rdb" validate:"required"`
}

// ObservableMetrics 语句执行的 prometheus 指标
type ObservableMetrics struct {
	statementCounter  *prometheus.CounterVec
	statementDuration *prometheus.HistogramVec
	activeStatements  *prometheus.GaugeVec
	unitsHistogram    *prometheus.HistogramVec
}

// NewObservableMetrics 创建并注册指标，同名指标已注册时复用已有的
func NewObservableMetrics(name string) *ObservableMetrics {
	return &ObservableMetrics{
		statementCounter: register(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_statements_total",
				Help: "Total number of executed statements",
			},
			[]string{"operation", "status"},
		)),
		statementDuration: register(prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_statement_duration_seconds",
				Help:    "Duration of statements in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation"},
		)),
		activeStatements: register(prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: name + "_active_statements",
				Help: "Number of statements in flight",
			},
			[]string{"operation"},
		)),
		unitsHistogram: register(prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_statement_units",
				Help:    "Round trips per compiled statement",
				Buckets: []float64{1, 5, 10, 50, 100, 500, 1000},
			},
			[]string{"operation"},
		)),
	}
}

func register[C prometheus.Collector](c C) C {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// ObservableSession 装饰器，为任何 Session 添加指标、日志和追踪
type ObservableSession struct {
	session Session
	system  string

	logger        logger.Logger
	metrics       *ObservableMetrics
	tracer        trace.Tracer
	name          string
	enableMetrics bool
	enableLogging bool
	enableTracing bool
}

// NewObservableSession system 为 span 上 db.system 的值，l 为 nil 时不记录日志
func NewObservableSession(session Session, system string, options *ObservableOptions, l logger.Logger) (*ObservableSession, error) {
	if session == nil {
		return nil, errors.New("session is nil")
	}
	if options == nil {
		return nil, errors.New("options is nil")
	}

	obs := &ObservableSession{
		session:       session,
		system:        system,
		name:          options.Name,
		enableMetrics: options.EnableMetrics,
		enableLogging: options.EnableLogging && l != nil,
		enableTracing: options.EnableTracing,
	}
	if obs.enableLogging {
		obs.logger = l.WithGroup("observableSession")
	}
	if options.EnableMetrics {
		obs.metrics = NewObservableMetrics(options.Name)
	}
	if options.EnableTracing {
		obs.tracer = otel.Tracer(fmt.Sprintf("rdb.%s", options.Name))
	}
	return obs, nil
}

func (obs *ObservableSession) observe(ctx context.Context, c *statement.Compiled, fn func(context.Context) error) error {
	operation := c.Kind.String()
	units := len(c.Steps())
	start := time.Now()

	var span trace.Span
	if obs.enableTracing && obs.tracer != nil {
		ctx, span = obs.tracer.Start(ctx, "rdb."+operation,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("component", obs.name),
				attribute.String("operation", operation),
				attribute.String("db.system", obs.system),
				attribute.String("db.statement", c.Text),
				attribute.Int("units", units),
			),
		)
		defer span.End()
	}

	if obs.enableMetrics && obs.metrics != nil {
		obs.metrics.unitsHistogram.WithLabelValues(operation).Observe(float64(units))
		obs.metrics.activeStatements.WithLabelValues(operation).Inc()
		defer obs.metrics.activeStatements.WithLabelValues(operation).Dec()
	}

	err := fn(ctx)
	duration := time.Since(start)

	if span != nil {
		span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if obs.enableMetrics && obs.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		obs.metrics.statementCounter.WithLabelValues(operation, status).Inc()
		obs.metrics.statementDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}

	if obs.enableLogging {
		if err != nil {
			obs.logger.ErrorContext(ctx, "statement failed",
				"component", obs.name,
				"operation", operation,
				"units", units,
				"duration_ms", duration.Milliseconds(),
				"error", err.Error(),
			)
		} else {
			obs.logger.DebugContext(ctx, "statement completed",
				"component", obs.name,
				"operation", operation,
				"units", units,
				"duration_ms", duration.Milliseconds(),
			)
		}
	}
	return err
}

func (obs *ObservableSession) Query(ctx context.Context, c *statement.Compiled) (*sql.Rows, error) {
	var rows *sql.Rows
	err := obs.observe(ctx, c, func(ctx context.Context) error {
		var err error
		rows, err = obs.session.Query(ctx, c)
		return err
	})
	return rows, err
}

func (obs *ObservableSession) Scalar(ctx context.Context, c *statement.Compiled) (any, error) {
	var v any
	err := obs.observe(ctx, c, func(ctx context.Context) error {
		var err error
		v, err = obs.session.Scalar(ctx, c)
		return err
	})
	return v, err
}

func (obs *ObservableSession) Exec(ctx context.Context, c *statement.Compiled) (int64, error) {
	var n int64
	err := obs.observe(ctx, c, func(ctx context.Context) error {
		var err error
		n, err = obs.session.Exec(ctx, c)
		return err
	})
	return n, err
}

func (obs *ObservableSession) ExecuteReturningGeneratedKeys(ctx context.Context, c *statement.Compiled) ([]GeneratedKey, int64, error) {
	var keys []GeneratedKey
	var n int64
	err := obs.observe(ctx, c, func(ctx context.Context) error {
		var err error
		keys, n, err = obs.session.ExecuteReturningGeneratedKeys(ctx, c)
		return err
	})
	return keys, n, err
}
