package metrics

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Имена счётчиков сервиса
const (
	AnalyzeRequests  = "analyze_requests_total"
	HTTPRequests     = "http_requests_total"
	ArtifactsCreated = "artifacts_created_total"
	ArtifactsRemoved = "artifacts_removed_total"
)

// series один счётчик с фиксированным набором меток
type series struct {
	value atomic.Int64
	attrs metric.MeasurementOption
	inst  metric.Int64Counter // nil, если OpenTelemetry отказал в инструменте
}

// Registry хранит счётчики для /metrics и дублирует их в OpenTelemetry.
type Registry struct {
	mu     sync.Mutex
	series sync.Map // ключ seriesKey -> *series
	insts  map[string]metric.Int64Counter
	meter  metric.Meter
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{
		insts: make(map[string]metric.Int64Counter),
		meter: otel.GetMeterProvider().Meter("saliency-heatmap"),
	}
}

// seriesKey имя и метки в виде name{a=1,b=2}, метки по алфавиту
func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	pairs := make([]string, 0, len(labels))
	for _, k := range keys {
		pairs = append(pairs, k+"="+labels[k])
	}
	return name + "{" + strings.Join(pairs, ",") + "}"
}

// Inc увеличивает счётчик name с метками labels на n.
// Nil-реестр ничего не делает, это удобно в тестах.
func (r *Registry) Inc(ctx context.Context, name string, labels map[string]string, n int64) {
	if r == nil {
		return
	}
	s := r.lookup(name, labels)
	s.value.Add(n)
	if s.inst != nil {
		s.inst.Add(ctx, n, s.attrs)
	}
}

// lookup возвращает серию, создавая её при первом обращении
func (r *Registry) lookup(name string, labels map[string]string) *series {
	key := seriesKey(name, labels)
	if s, ok := r.series.Load(key); ok {
		return s.(*series)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.series.Load(key); ok {
		return s.(*series)
	}

	kvs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		kvs = append(kvs, attribute.String(k, v))
	}
	s := &series{
		attrs: metric.WithAttributeSet(attribute.NewSet(kvs...)),
		inst:  r.instrument(name),
	}
	r.series.Store(key, s)
	return s
}

// instrument вызывается под r.mu
func (r *Registry) instrument(name string) metric.Int64Counter {
	if inst, ok := r.insts[name]; ok {
		return inst
	}
	inst, err := r.meter.Int64Counter(name)
	if err != nil {
		inst = nil
	}
	r.insts[name] = inst
	return inst
}

// Value возвращает текущее значение счётчика
func (r *Registry) Value(name string, labels map[string]string) int64 {
	if s, ok := r.series.Load(seriesKey(name, labels)); ok {
		return s.(*series).value.Load()
	}
	return 0
}

// SnapshotLines возвращает отсортированные строки "ключ значение".
func (r *Registry) SnapshotLines() []string {
	var lines []string
	r.series.Range(func(k, v any) bool {
		lines = append(lines, fmt.Sprintf("%s %d", k, v.(*series).value.Load()))
		return true
	})
	slices.Sort(lines)
	return lines
}

// EchoHandlerText отдаёт счётчики в текстовом виде
func (r *Registry) EchoHandlerText(c echo.Context) error {
	var b strings.Builder
	for _, line := range r.SnapshotLines() {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return c.String(200, b.String())
}
