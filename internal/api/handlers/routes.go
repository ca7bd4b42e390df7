// Package handlers implements the read-only HTTP API over published records
// and connection state.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/thrillee/smppsim/internal/store"
)

// SetupRoutes registers every API route on router.
func SetupRoutes(router gin.IRouter, st store.Store, src StatusSource) {
	msgHandler := NewMessageHandler(st)
	connHandler := NewConnectionHandler(src)

	messages := router.Group("/messages")
	{
		messages.GET("", msgHandler.ListMessages)
		messages.GET("/:id", msgHandler.GetMessage)
	}

	router.GET("/conversations", msgHandler.ListConversations)

	connections := router.Group("/connections")
	{
		connections.GET("", connHandler.ListConnections)
		connections.GET("/:id", connHandler.GetConnection)
	}

	router.GET("/health", connHandler.Health)
}
