package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequestsTotal 记录 HTTP 请求总数
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uploadnest",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration 记录 HTTP 请求耗时
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "uploadnest",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// httpResponseSize 记录响应大小
	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "uploadnest",
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// activeRequests 当前活跃请求数
	activeRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "uploadnest",
		Name:      "http_active_requests",
		Help:      "Number of active HTTP requests",
	})

	// UploadedFiles 按结果统计上传的文件数
	UploadedFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uploadnest",
			Name:      "uploaded_files_total",
			Help:      "Total number of uploaded files by outcome",
		},
		[]string{"outcome"},
	)

	// UploadedBytes 统计入库的字节数
	UploadedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "uploadnest",
		Name:      "uploaded_bytes_total",
		Help:      "Total bytes of successfully uploaded files",
	})

	// ZipDownloads 统计打包下载次数
	ZipDownloads = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "uploadnest",
		Name:      "zip_downloads_total",
		Help:      "Total number of multi-file zip downloads",
	})
)

// statusRecorder 捕获写出的状态码与字节数。
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

// Metrics 创建 Prometheus 指标收集中间件。
// 路径标签使用 chi 的路由模式而非原始路径，避免高基数。
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			activeRequests.Inc()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			activeRequests.Dec()

			path := chi.RouteContext(r.Context()).RoutePattern()
			if path == "" {
				path = "unknown"
			}
			status := strconv.Itoa(rec.status)

			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
			httpResponseSize.WithLabelValues(r.Method, path).Observe(float64(rec.bytes))
		})
	}
}
