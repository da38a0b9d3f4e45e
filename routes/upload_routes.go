package routes

import (
	"github.com/anjiri1684/medichat/handlers"
	"github.com/anjiri1684/medichat/middleware"
	"github.com/gofiber/fiber/v2"
)

func UploadRoutes(app *fiber.App, uploads *handlers.UploadHandler, secret string) {
	api := app.Group("/api/v1/uploads", middleware.Protected(secret))
	api.Get("/signature", uploads.GenerateAttachmentSignature)
}
