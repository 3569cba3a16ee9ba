// Command facilitator-dev is a development stand-in for the external x402
// facilitators. It implements POST /verify and POST /settle for the exact
// (EVM) and exact-canton schemes with structural envelope checks and
// deterministic transaction references, so the server and its e2e flows
// can run without touching a real rail.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type facilitatorRequest struct {
	X402Version    int `json:"x402Version"`
	PaymentPayload struct {
		X402Version int                    `json:"x402Version"`
		Scheme      string                 `json:"scheme"`
		Network     string                 `json:"network"`
		Payload     map[string]interface{} `json:"payload"`
	} `json:"paymentPayload"`
	PaymentRequirements struct {
		Scheme            string `json:"scheme"`
		Network           string `json:"network"`
		MaxAmountRequired string `json:"maxAmountRequired"`
		PayTo             string `json:"payTo"`
		Asset             string `json:"asset"`
	} `json:"paymentRequirements"`
}

// check validates the envelope against the requirement. It returns an
// empty string when the payment looks acceptable.
func (r *facilitatorRequest) check() string {
	p := r.PaymentPayload
	req := r.PaymentRequirements
	switch p.Scheme {
	case "exact", "exact-canton":
	default:
		return fmt.Sprintf("unsupported scheme %q", p.Scheme)
	}
	if req.Scheme != "" && p.Scheme != req.Scheme {
		return fmt.Sprintf("scheme mismatch: envelope %q, requirement %q", p.Scheme, req.Scheme)
	}
	if req.Network != "" && p.Network != "" && p.Network != req.Network {
		return fmt.Sprintf("network mismatch: envelope %q, requirement %q", p.Network, req.Network)
	}
	if len(p.Payload) == 0 {
		return "empty payment payload"
	}
	if req.MaxAmountRequired == "" {
		return "requirement missing amount"
	}
	if req.PayTo == "" {
		return "requirement missing payee"
	}
	// Magic payload marker for exercising the rejection path in tests and
	// local runs.
	if reject, _ := p.Payload["reject"].(string); reject != "" {
		return reject
	}
	return ""
}

// txRef derives a deterministic transaction reference from the envelope so
// repeated settles of the same payment produce the same reference.
func (r *facilitatorRequest) txRef() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%v",
		r.PaymentPayload.Scheme,
		r.PaymentRequirements.MaxAmountRequired,
		r.PaymentRequirements.PayTo,
		r.PaymentPayload.Payload)))
	return "0x" + hex.EncodeToString(sum[:8])
}

func main() {
	port := flag.Int("port", 8402, "listen port")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.POST("/verify", func(c echo.Context) error {
		var req facilitatorRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request"})
		}
		if reason := req.check(); reason != "" {
			logger.Info("verify rejected", "scheme", req.PaymentPayload.Scheme, "reason", reason)
			return c.JSON(http.StatusOK, echo.Map{"verdict": "rejected", "reason": reason})
		}
		logger.Info("verify ok", "scheme", req.PaymentPayload.Scheme,
			"amount", req.PaymentRequirements.MaxAmountRequired)
		return c.JSON(http.StatusOK, echo.Map{"verdict": "verified"})
	})

	e.POST("/settle", func(c echo.Context) error {
		var req facilitatorRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request"})
		}
		if reason := req.check(); reason != "" {
			logger.Info("settle failed", "scheme", req.PaymentPayload.Scheme, "reason", reason)
			return c.JSON(http.StatusOK, echo.Map{"result": "failed", "reason": reason})
		}
		ref := req.txRef()
		logger.Info("settled", "scheme", req.PaymentPayload.Scheme, "tx", ref)
		return c.JSON(http.StatusOK, echo.Map{"result": "settled", "tx_ref": ref})
	})

	if err := e.Start(fmt.Sprintf(":%d", *port)); err != nil {
		logger.Error("facilitator-dev exited", "error", err)
		os.Exit(1)
	}
}
