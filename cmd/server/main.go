// Command server exposes the checkout session flow over HTTP for demos and
// integration testing. Sessions are driven headlessly with a scripted
// drop-in that answers backend actions from a canned details table.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/yourorg/checkout-session/internal/checkout"
	"github.com/yourorg/checkout-session/internal/dropin"
	"github.com/yourorg/checkout-session/internal/metrics"
	"github.com/yourorg/checkout-session/internal/monitor"
	"github.com/yourorg/checkout-session/internal/policy"
	"github.com/yourorg/checkout-session/internal/reporting"
	"github.com/yourorg/checkout-session/internal/session"
	"github.com/yourorg/checkout-session/internal/wire"
)

const serviceName = "checkout-session"

// sessionTimeout bounds how long one demo session may stay unresolved.
const sessionTimeout = 30 * time.Second

type openSessionRequest struct {
	BaseURL            string            `json:"baseUrl"`
	MerchantAccount    string            `json:"merchantAccount"`
	ClientKey          string            `json:"clientKey"`
	Currency           string            `json:"currency"`
	Amount             string            `json:"amount"`
	LineItem           wire.LineItem     `json:"lineItem"`
	Environment        string            `json:"environment"`
	Reference          string            `json:"reference"`
	ReturnURL          string            `json:"returnUrl"`
	ShopperReference   string            `json:"shopperReference"`
	Locale             string            `json:"locale"`
	AdditionalData     map[string]string `json:"additionalData"`
	ApplePayMerchantID string            `json:"applePayMerchantId"`
	PaymentMethods     json.RawMessage   `json:"paymentMethods"`
	PaymentMethod      json.RawMessage   `json:"paymentMethod"`
}

func (r openSessionRequest) config() session.Config {
	return session.Config{
		BaseURL:            r.BaseURL,
		MerchantAccount:    r.MerchantAccount,
		ClientKey:          r.ClientKey,
		Currency:           r.Currency,
		Amount:             r.Amount,
		LineItem:           r.LineItem,
		Environment:        session.ParseEnvironment(r.Environment),
		Reference:          r.Reference,
		ReturnURL:          r.ReturnURL,
		ShopperReference:   r.ShopperReference,
		Locale:             r.Locale,
		AdditionalData:     r.AdditionalData,
		ApplePayMerchantID: r.ApplePayMerchantID,
	}
}

// scriptedDropIn builds the headless drop-in for one demo session. Every
// known action type is answered with a canned details payload; the backend's
// paymentData is echoed back.
func scriptedDropIn(paymentMethod json.RawMessage) *dropin.Scripted {
	if len(paymentMethod) == 0 {
		paymentMethod = json.RawMessage(`{"type":"scheme"}`)
	}
	return &dropin.Scripted{
		Confirmation: dropin.Confirmation{PaymentMethod: paymentMethod},
		Details: map[wire.ActionType]wire.DetailsRequest{
			wire.ActionRedirect: {Details: json.RawMessage(`{"redirectResult":"demo"}`)},
			wire.ActionThreeDS2: {Details: json.RawMessage(`{"threeDSResult":"demo"}`)},
			wire.ActionAwait:    {Details: json.RawMessage(`{"payload":"demo"}`)},
			wire.ActionSDK:      {Details: json.RawMessage(`{"payload":"demo"}`)},
		},
	}
}

func openSessionHandler(svc *checkout.Service, cm *monitor.ContractMonitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
			return
		}

		valid, violations, err := cm.Validate(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !valid {
			c.JSON(http.StatusBadRequest, gin.H{"error": monitor.FormatErrors(violations)})
			return
		}

		var req openSessionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format: " + err.Error()})
			return
		}

		results, err := svc.OpenSession(c.Request.Context(), req.config(), req.PaymentMethods, scriptedDropIn(req.PaymentMethod))
		if err != nil {
			var rejection *checkout.PolicyRejectionError
			if errors.As(err, &rejection) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": rejection.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		select {
		case out := <-results:
			c.JSON(http.StatusOK, gin.H{"outcome": string(out)})
		case <-time.After(sessionTimeout):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "session did not resolve in time"})
		}
	}
}

func retrospectiveHandler(store *reporting.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, reporting.Generate(store.Snapshot()))
	}
}

func setupRouter(svc *checkout.Service, cm *monitor.ContractMonitor, store *reporting.Store) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))
	router.POST("/sessions", openSessionHandler(svc, cm))
	router.GET("/retrospective", retrospectiveHandler(store))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

func initTracing() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	shutdown, err := initTracing()
	if err != nil {
		logger.Error("tracing_init_failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Error("tracing_shutdown_failed", "error", err)
		}
	}()

	enforcer, err := policy.NewEnforcer(policy.DefaultRules())
	if err != nil {
		logger.Error("policy_init_failed", "error", err)
		os.Exit(1)
	}
	cm, err := monitor.NewContractMonitor(monitor.OpenSessionSchema)
	if err != nil {
		logger.Error("monitor_init_failed", "error", err)
		os.Exit(1)
	}

	store := reporting.NewStore()
	recorder := metrics.New(nil)
	svc := checkout.NewService(enforcer, recorder, store, nil, logger)

	addr := getEnv("LISTEN_ADDR", ":8080")
	logger.Info("server_starting", "addr", addr)
	if err := setupRouter(svc, cm, store).Run(addr); err != nil {
		logger.Error("server_failed", "error", err)
		os.Exit(1)
	}
}
