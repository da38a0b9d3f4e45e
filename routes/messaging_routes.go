package routes

import (
	"github.com/anjiri1684/medichat/handlers"
	"github.com/anjiri1684/medichat/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func MessagingRoutes(app *fiber.App, chat *handlers.ChatHandler, realtime *handlers.RealtimeHandler, secret string) {
	api := app.Group("/api/v1")

	messages := api.Group("/messages", middleware.Protected(secret))
	messages.Post("", chat.SendMessage)
	messages.Get("/users/:doctorId", middleware.DoctorRequired(), chat.GetParticipants)
	messages.Get("/unread-count", chat.GetUnreadTotal)
	messages.Get("/unread-count/:doctorId/:userId", chat.GetUnreadCount)
	messages.Put("/mark-read/:doctorId/:userId", chat.MarkRead)
	messages.Delete("/clear/:doctorId/:userId", chat.ClearConversation)
	messages.Get("/:doctorId/:patientId/transcript", chat.GetTranscript)
	messages.Get("/:doctorId/:patientId", chat.GetConversation)

	api.Get("/presence/:userId", middleware.Protected(secret), chat.GetPresence)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	api.Get("/ws", websocket.New(realtime.ServeWs))
}
