package main

import (
	"errors"
	"log"
	"mmpay/src/common"
	"mmpay/src/types"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func paymentHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/payments", func(ctx *gin.Context) {
			var body types.InitiatePaymentRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			id, err := common.InitiatePayment(ctx, body.PayerReference, body.PayeeReference, body.GrossAmount)
			if err != nil {
				log.Printf("Error initiating payment: %s\n", err.Error())
				switch {
				case errors.Is(err, types.ErrInvalidAmount):
					ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				case errors.Is(err, types.ErrGatewayUnavailable):
					ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "id": id.String()})
				default:
					// The transaction exists in COLLECTION_FAILED; return its id
					// so the caller can inspect it.
					ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "id": id.String()})
				}
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"id": id.String()})
		}).
		GET("/payments/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			id := uuid.MustParse(params.ID)
			txn, err := common.GetTransaction(id)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					ctx.JSON(http.StatusNotFound, gin.H{"error": "Could not find record with associated id"})
					return
				}
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": txn})
		})
	return g
}
