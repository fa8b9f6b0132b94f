package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat sync service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	appendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_store_appends_total",
			Help: "Message appends by result.",
		},
		[]string{"result"},
	)
	feedPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_feed_publish_errors_total",
			Help: "Change notifications that could not be published after a successful append.",
		},
	)
	activeRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sync_active_rooms",
			Help: "Rooms with at least one subscriber.",
		},
	)
	activeSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sync_active_subscriptions",
			Help: "Registered room subscriptions.",
		},
	)
	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sync_deliveries_total",
			Help: "Events delivered to subscribers by source.",
		},
		[]string{"source"},
	)
	disconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sync_disconnects_total",
			Help: "Room watch outages.",
		},
	)
	reattachAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sync_reattach_attempts_total",
			Help: "Room watch reattach attempts by result.",
		},
		[]string{"result"},
	)
	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_blob_uploads_total",
			Help: "Blob uploads by result.",
		},
		[]string{"result"},
	)
	sendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_sends_total",
			Help: "Client send attempts by kind and result.",
		},
		[]string{"kind", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
		appendsTotal,
		feedPublishErrorsTotal,
		activeRooms,
		activeSubscriptions,
		deliveriesTotal,
		disconnectsTotal,
		reattachAttemptsTotal,
		uploadsTotal,
		sendsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncWSActive() { wsActiveConnections.Inc() }

func DecWSActive() { wsActiveConnections.Dec() }

func IncWSEvent(event string) { wsEventsTotal.WithLabelValues(event).Inc() }

func IncAMQPPublishError() { amqpPublishErrorsTotal.Inc() }

func IncAppend(result string) { appendsTotal.WithLabelValues(result).Inc() }

func IncFeedPublishError() { feedPublishErrorsTotal.Inc() }

func AddActiveRooms(delta float64) { activeRooms.Add(delta) }

func AddActiveSubscriptions(delta float64) { activeSubscriptions.Add(delta) }

func IncDelivery(source string) { deliveriesTotal.WithLabelValues(source).Inc() }

func IncDisconnect() { disconnectsTotal.Inc() }

func IncReattach(result string) { reattachAttemptsTotal.WithLabelValues(result).Inc() }

func IncUpload(result string) { uploadsTotal.WithLabelValues(result).Inc() }

func IncSend(kind, result string) { sendsTotal.WithLabelValues(kind, result).Inc() }
