package admin

import "github.com/gin-gonic/gin"

// operatorKey 与鉴权中间件写入的上下文键一致
const operatorKey = "operator"

func getOperator(c *gin.Context) string {
	value, ok := c.Get(operatorKey)
	if !ok {
		return ""
	}
	operator, _ := value.(string)
	return operator
}
