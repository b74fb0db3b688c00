package main

import (
	"io"
	"log"
	"mmpay/src/common"
	"mmpay/src/types"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

// webhookHandlers receives the gateway's asynchronous callbacks. Anything
// that parses is acknowledged with a 200 even when reconciliation finds a
// problem: the gateway redelivers until acked, and redelivering a payload
// we already recorded (or quarantined) helps nobody.
func webhookHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/webhook/gateway", func(ctx *gin.Context) {
			payload, err := io.ReadAll(ctx.Request.Body)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			body := string(payload)
			if !gjson.Valid(body) {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
				return
			}
			requestID := gjson.Get(body, "request_id").String()
			leg := gjson.Get(body, "leg").String()
			outcome := gjson.Get(body, "outcome").String()
			if requestID == "" || leg == "" || outcome == "" {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields"})
				return
			}
			cb := types.GatewayCallback{
				RequestID:      requestID,
				Leg:            types.PaymentLeg(leg),
				Outcome:        types.CallbackOutcome(outcome),
				ReportedAmount: gjson.Get(body, "reported_amount").Int(),
				FailureReason:  gjson.Get(body, "failure_reason").String(),
			}
			if err := common.HandleGatewayCallback(ctx, &cb); err != nil {
				log.Printf("[webhook] Reconciliation error for %s: %s\n", cb.RequestID, err.Error())
			}
			ctx.JSON(http.StatusOK, gin.H{"received": true})
		})
	return g
}
