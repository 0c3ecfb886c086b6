package metrics

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// GinMiddleware 记录 HTTP 请求计数，按 method、route、status_class 分组
//
// counter 为 nil 时直接放行。
func GinMiddleware(counter Counter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if counter == nil {
			return
		}

		route := c.FullPath()
		if route == "" {
			route = UnknownRoute
		}
		counter.Inc(c.Request.Context(),
			L(LabelMethod, c.Request.Method),
			L(LabelRoute, route),
			L(LabelStatusClass, statusClass(c.Writer.Status())),
		)
	}
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
