package main

import (
	"context"
	"errors"
	"log"
	"mmpay/src/common"
	"mmpay/src/db"
	"mmpay/src/models"
	"mmpay/src/types"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func adminHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/admin/payments/:id/retry-disbursement", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			id := uuid.MustParse(params.ID)
			if err := common.RetryDisbursement(ctx, id); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					ctx.JSON(http.StatusNotFound, gin.H{"error": "Could not find record with associated id"})
					return
				}
				log.Printf("Error retrying disbursement for %s: %s\n", id.String(), err.Error())
				ctx.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			txn, err := common.GetTransaction(id)
			if err != nil {
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"id": id.String(), "status": txn.Status})
		}).
		GET("/admin/reviews", func(ctx *gin.Context) {
			d := db.GetDb()
			var items []models.ReviewItem
			if err := d.
				Model(&models.ReviewItem{}).
				Where(&models.ReviewItem{Resolved: false}).
				Order("created_at asc").
				Find(&items).
				Error; err != nil {
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": items})
		}).
		POST("/admin/reviews/:id/resolve", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var body types.ResolveReviewRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			id := uuid.MustParse(params.ID)
			d := db.GetDb()
			res := d.
				Model(&models.ReviewItem{}).
				Where("id = ? AND resolved = ?", id, false).
				Updates(map[string]any{
					"resolved":      true,
					"resolved_note": body.Note,
				})
			if res.Error != nil {
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
				return
			}
			if res.RowsAffected == 0 {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "Could not find unresolved review with associated id"})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"id": id.String(), "resolved": true})
		}).
		POST("/admin/sweep", func(ctx *gin.Context) {
			go common.SweepStuckTransactions(context.Background())
			ctx.JSON(http.StatusAccepted, gin.H{"started": true})
		})
	return g
}
