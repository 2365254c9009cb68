// Package httpapi implements the HTTP side channel: /health,
// /model-status, /initialize-model, plus the /ws/signal websocket
// upgrade endpoint on the same server.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ModelStatus is the subset of signaling.Engine the HTTP side channel
// needs to answer /model-status and /initialize-model without
// depending on the engine package directly.
type ModelStatus interface {
	Status() (loaded bool, modelPath string)
	Initialize() (loadMillis int64, err error)
}

// SignalHandler upgrades and serves one control websocket connection;
// satisfied by *signaling.Hub.
type SignalHandler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

func NewRouter(engine ModelStatus, hub SignalHandler) *gin.Engine {
	r := gin.Default()
	r.Use(cors())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/model-status", func(c *gin.Context) {
		loaded, path := engine.Status()
		c.JSON(http.StatusOK, gin.H{"loaded": loaded, "modelPath": path})
	})

	r.POST("/initialize-model", func(c *gin.Context) {
		loadMillis, err := engine.Initialize()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "loadTime": loadMillis})
	})

	// gin's raw-handler escape hatch lets the websocket upgrade share
	// this same http.Server as the JSON routes above.
	r.GET("/ws/signal", func(c *gin.Context) {
		hub.ServeHTTP(c.Writer, c.Request)
	})

	return r
}

// cors permits all origins, matching the broker's CheckOrigin: tunnels
// and local dev both need to reach this server.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
