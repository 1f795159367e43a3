// Package validation checks API and CLI input.
//
// Request structs are validated through struct tags:
//
//	type addChannelRequest struct {
//	    ChannelID string `json:"channel_id" validate:"required,channel_id"`
//	    Format    string `json:"output_format" validate:"omitempty,subtitle_format"`
//	}
//	err := validation.Validate(req)
//
// Query parameters are validated programmatically:
//
//	v := validation.New()
//	v.Range("limit", limit, 0, 1000)
//	err := v.Validate()
//
// Both return an *errors.AppError with code INVALID_INPUT and the failing
// fields under details["fields"].
package validation
