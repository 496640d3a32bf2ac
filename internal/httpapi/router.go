// Package httpapi wires the client-facing and provider-facing HTTP
// surfaces (spec.md §5) onto a gin.Engine. Grounded on the teacher's
// RegisterRoutes-per-concern shape (api/assistant-api/router/assistant.go's
// TalkCallbackApiRoute), adapted from gRPC-service registration to plain
// gin route groups.
package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/credential"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/promptwebhook"
)

// RegisterRoutes mounts every endpoint of spec.md §5 onto engine.
func RegisterRoutes(
	engine *gin.Engine,
	credentials credential.Store,
	callHandler *CallHandler,
	webhookHandler *WebhookHandler,
	promptHandler *promptwebhook.Handler,
	credentialHandler *CredentialHandler,
) {
	engine.GET("/health", callHandler.Health)
	engine.POST("/generate-api-key", credentialHandler.GenerateAPIKey)

	auth := engine.Group("/")
	auth.Use(AuthMiddleware(credentials))
	{
		auth.POST("/call", callHandler.PlaceCall)
		auth.GET("/calls", callHandler.ListCalls)
		auth.GET("/calls/:id", callHandler.GetCall)
		auth.GET("/recordings", callHandler.ListRecordings)
		auth.GET("/recordings/:filename", callHandler.GetRecording)
		auth.GET("/stats", callHandler.Stats)
	}

	engine.POST("/voice", promptHandler.ServeTurn)
	engine.POST("/voice-interactive", promptHandler.ServeTurn)
	engine.GET("/prompt-audio/:id", promptHandler.ServePromptAudio)
	engine.POST("/call-status", webhookHandler.HandleCallStatus)
	engine.POST("/handle-recording", webhookHandler.HandleRecording)
}
