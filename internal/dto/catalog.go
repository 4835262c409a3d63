package dto

// CreateActivityRequest adds a named reason for awarding points.
type CreateActivityRequest struct {
	Name          string `json:"name" validate:"required,max=200"`
	Description   string `json:"description" validate:"max=500"`
	DefaultPoints int64  `json:"defaultPoints"`
	Actor         string `json:"-"`
}

// UpdateActivityRequest replaces the editable fields of an activity.
type UpdateActivityRequest struct {
	Name          string `json:"name" validate:"required,max=200"`
	Description   string `json:"description" validate:"max=500"`
	DefaultPoints int64  `json:"defaultPoints"`
	Active        bool   `json:"active"`
	Actor         string `json:"-"`
}

// CreatePrizeRequest adds an inventory item.
type CreatePrizeRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=500"`
	PointCost   int64  `json:"pointCost" validate:"gte=0"`
	StockCount  int64  `json:"stockCount" validate:"gte=0"`
	Actor       string `json:"-"`
}

// AdjustStockRequest restocks (positive) or writes off (negative) prize units.
type AdjustStockRequest struct {
	Delta  int64  `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
	Actor  string `json:"-"`
}

// UpdateSettingRequest sets a runtime setting.
type UpdateSettingRequest struct {
	Value       string `json:"value" validate:"max=2000"`
	Description string `json:"description" validate:"max=500"`
	Actor       string `json:"-"`
}

// AuditQuery mirrors the audit listing filters.
type AuditQuery struct {
	ActionType  string `form:"actionType"`
	Actor       string `form:"actor"`
	TargetTable string `form:"targetTable"`
	TargetID    int64  `form:"targetId"`
	Limit       int    `form:"limit"`
}
