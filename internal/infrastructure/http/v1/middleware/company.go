package middleware

import (
	"github.com/gin-gonic/gin"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
)

const (
	// CompanyParam is the path parameter scoping every posting route.
	CompanyParam = "companyId"
	// CompanyKey holds the parsed company id on the gin context.
	CompanyKey = "company_id"
)

// Company validates the company path parameter before any handler runs.
func Company() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param(CompanyParam)
		companyID, ok := id.ParseNonNil(raw)
		if !ok {
			_ = c.Error(
				apperror.NewValidation("invalid company id").
					WithDetail("param", CompanyParam).
					WithDetail("value", raw),
			)
			c.Abort()
			return
		}
		c.Set(CompanyKey, companyID.String())
		c.Next()
	}
}

// CompanyID returns the company parsed by Company.
func CompanyID(c *gin.Context) id.ID {
	v, _ := id.Parse(c.GetString(CompanyKey))
	return v
}
