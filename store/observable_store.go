package store

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hatlonely/tablex/log"
	"github.com/hatlonely/tablex/record"
)

type ObservableStoreOptions struct {
	// EnableMetrics 是否启用指标收集
	EnableMetrics bool `cfg:"enableMetrics" def:"true"`

	// EnableLogging 是否启用日志记录
	EnableLogging bool `cfg:"enableLogging" def:"true"`

	// EnableTracing 是否启用分布式追踪
	EnableTracing bool `cfg:"enableTracing" def:"false"`

	// Name 组件名称标识，用于所有观测维度
	// - Metrics: 作为指标名前缀
	// - Logging: 作为 component 字段值
	// - Tracing: 作为 span 的 component 属性
	Name string `cfg:"name" def:"record_store"`
}

// ObservableMetrics 封装 prometheus 指标
type ObservableMetrics struct {
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	activeOperations  *prometheus.GaugeVec
	queryResultSize   *prometheus.HistogramVec
}

// NewObservableMetrics 创建指标收集器
func NewObservableMetrics(name string) *ObservableMetrics {
	metrics := &ObservableMetrics{
		operationCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_operations_total",
				Help: "Total number of store operations",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_operation_duration_seconds",
				Help:    "Duration of store operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation"},
		),
		activeOperations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: name + "_active_operations",
				Help: "Number of active store operations",
			},
			[]string{"operation"},
		),
		queryResultSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_query_result_size",
				Help:    "Number of records returned by query operations",
				Buckets: []float64{1, 5, 10, 25, 50, 100},
			},
			[]string{"operation"},
		),
	}

	// 注册到默认 prometheus registry
	prometheus.MustRegister(
		metrics.operationCounter,
		metrics.operationDuration,
		metrics.activeOperations,
		metrics.queryResultSize,
	)

	return metrics
}

// ObservableStore 装饰器，为任何 RecordStore 添加观测能力
type ObservableStore struct {
	store RecordStore

	logger        log.Logger
	metrics       *ObservableMetrics
	tracer        trace.Tracer
	name          string
	enableMetrics bool
	enableLogging bool
	enableTracing bool
}

func NewObservableStoreWithOptions(store RecordStore, logger log.Logger, options *ObservableStoreOptions) *ObservableStore {
	if options == nil {
		options = &ObservableStoreOptions{EnableMetrics: true, EnableLogging: true}
	}
	if options.Name == "" {
		options.Name = "record_store"
	}

	obs := &ObservableStore{
		store:         store,
		name:          options.Name,
		enableMetrics: options.EnableMetrics,
		enableLogging: options.EnableLogging,
		enableTracing: options.EnableTracing,
	}

	if options.EnableLogging {
		if logger == nil {
			logger = &log.Nop{}
		}
		obs.logger = logger.WithGroup("observableStore")
	}

	if options.EnableMetrics {
		obs.metrics = NewObservableMetrics(options.Name)
	}

	if options.EnableTracing {
		obs.tracer = otel.Tracer(fmt.Sprintf("store.%s", options.Name))
	}

	return obs
}

// observeOperation 统一的操作观测逻辑
func (obs *ObservableStore) observeOperation(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := time.Now()

	// 创建 tracing span
	var span trace.Span
	if obs.enableTracing && obs.tracer != nil {
		ctx, span = obs.tracer.Start(ctx, fmt.Sprintf("store.%s", operation),
			trace.WithAttributes(
				attribute.String("component", obs.name),
				attribute.String("operation", operation),
			),
		)
		defer span.End()
	}

	// 记录活跃操作数
	if obs.enableMetrics && obs.metrics != nil {
		obs.metrics.activeOperations.WithLabelValues(operation).Inc()
		defer obs.metrics.activeOperations.WithLabelValues(operation).Dec()
	}

	// 执行实际操作
	err := fn(ctx)
	duration := time.Since(start)

	// 更新 tracing span
	if obs.enableTracing && span != nil {
		span.SetAttributes(
			attribute.Int64("duration_ms", duration.Milliseconds()),
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	// 记录指标
	if obs.enableMetrics && obs.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		obs.metrics.operationCounter.WithLabelValues(operation, status).Inc()
		obs.metrics.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}

	// 记录日志
	if obs.enableLogging && obs.logger != nil {
		if err != nil {
			obs.logger.ErrorContext(ctx, "store operation failed",
				"component", obs.name,
				"operation", operation,
				"duration_ms", duration.Milliseconds(),
				"error", err.Error(),
			)
		} else {
			obs.logger.InfoContext(ctx, "store operation completed",
				"component", obs.name,
				"operation", operation,
				"duration_ms", duration.Milliseconds(),
			)
		}
	}

	return err
}

func (obs *ObservableStore) Insert(ctx context.Context, rec record.Record) (record.Record, error) {
	var result record.Record
	err := obs.observeOperation(ctx, "insert", func(ctx context.Context) error {
		var err error
		result, err = obs.store.Insert(ctx, rec)
		return err
	})
	return result, err
}

func (obs *ObservableStore) Get(ctx context.Context, key Key) (record.Record, error) {
	var result record.Record
	err := obs.observeOperation(ctx, "get", func(ctx context.Context) error {
		var err error
		result, err = obs.store.Get(ctx, key)
		return err
	})
	return result, err
}

func (obs *ObservableStore) Update(ctx context.Context, key Key, partial record.Record) (record.Record, error) {
	var result record.Record
	err := obs.observeOperation(ctx, "update", func(ctx context.Context) error {
		var err error
		result, err = obs.store.Update(ctx, key, partial)
		return err
	})
	return result, err
}

func (obs *ObservableStore) Delete(ctx context.Context, key Key) (bool, error) {
	var deleted bool
	err := obs.observeOperation(ctx, "delete", func(ctx context.Context) error {
		var err error
		deleted, err = obs.store.Delete(ctx, key)
		return err
	})
	return deleted, err
}

func (obs *ObservableStore) Query(ctx context.Context, field string, value string, limit int, token string) (*QueryResult, error) {
	var result *QueryResult
	err := obs.observeOperation(ctx, "query", func(ctx context.Context) error {
		var err error
		result, err = obs.store.Query(ctx, field, value, limit, token)
		return err
	})
	if err == nil && result != nil && obs.enableMetrics && obs.metrics != nil {
		obs.metrics.queryResultSize.WithLabelValues("query").Observe(float64(len(result.Records)))
	}
	return result, err
}

func (obs *ObservableStore) Ping(ctx context.Context) error {
	return obs.observeOperation(ctx, "ping", func(ctx context.Context) error {
		return obs.store.Ping(ctx)
	})
}

func (obs *ObservableStore) Close() error {
	return obs.store.Close()
}
