package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/carloz138/catalogo-magico-mx-sub005/controllers"
)

func RegisterRoutes(r *gin.Engine, ingestionController *controllers.IngestionController) {
	ingestionRoutes := r.Group("/ingestions")
	{
		ingestionRoutes.GET("/template", ingestionController.Template)
		ingestionRoutes.POST("/preview", ingestionController.Preview)
		ingestionRoutes.POST("", ingestionController.Create)
		ingestionRoutes.GET("/:id", ingestionController.Get)
		ingestionRoutes.POST("/:id/cancel", ingestionController.Cancel)
	}
}
