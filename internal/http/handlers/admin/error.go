package admin

import (
	"github.com/parcelsync/internal/carrier"
	handlershared "github.com/parcelsync/internal/http/handlers/shared"
	"github.com/parcelsync/internal/http/response"
	"github.com/parcelsync/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

var orderLookupErrorRules = []handlershared.MappedError{
	{Target: service.ErrOrderNotFound, Code: response.CodeNotFound, Msg: "order not found"},
	{Target: service.ErrStatusFilterInvalid, Code: response.CodeBadRequest, Msg: "invalid status filter"},
}

var shipmentCreateErrorRules = []handlershared.MappedError{
	{Target: service.ErrOrderNotFound, Code: response.CodeNotFound, Msg: "order not found"},
	{Target: service.ErrOrderAlreadyShipped, Code: response.CodeConflict, Msg: "order already has a shipment"},
	{Target: service.ErrOrderNotShippable, Code: response.CodeConflict, Msg: "order status does not allow shipping"},
	{Target: service.ErrOrderAddressInvalid, Code: response.CodeBadRequest, Msg: "order address incomplete"},
	{Target: carrier.ErrValidationFailed, Code: response.CodeBadRequest, Msg: "carrier rejected the shipment"},
	{Target: carrier.ErrAuthFailed, Code: response.CodeBadGateway, Msg: "carrier authentication failed"},
	{Target: carrier.ErrNetwork, Code: response.CodeBadGateway, Msg: "carrier unavailable"},
}

var reconcileErrorRules = []handlershared.MappedError{
	{Target: service.ErrOrderNotFound, Code: response.CodeNotFound, Msg: "order not found"},
	{Target: service.ErrOrderNoShipment, Code: response.CodeConflict, Msg: "order has no shipment"},
	{Target: service.ErrCarrierMismatch, Code: response.CodeConflict, Msg: "order belongs to another carrier"},
	{Target: carrier.ErrNotFound, Code: response.CodeNotFound, Msg: "shipment not found at carrier"},
	{Target: carrier.ErrAuthFailed, Code: response.CodeBadGateway, Msg: "carrier authentication failed"},
	{Target: carrier.ErrNetwork, Code: response.CodeBadGateway, Msg: "carrier unavailable"},
}
