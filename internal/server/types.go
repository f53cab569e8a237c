// Package server provides the HTTP surface of the render service.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

// RenderRequest is the HTTP request body for rendering a video.
type RenderRequest struct {
	// WebsiteURL is the page to capture. A missing scheme defaults to https.
	WebsiteURL string `json:"website_url" validate:"required,max=2048"`
	// AudioURL is the narration, over http(s) or s3.
	AudioURL string `json:"audio_url" validate:"required,url,max=2048"`
	// LogoURL is an optional brand mark, over http(s) or s3.
	LogoURL string `json:"logo_url" validate:"omitempty,url,max=2048"`
	// BrandLine1 and BrandLine2 are shown during the intro.
	BrandLine1 string `json:"brand_line1" validate:"max=200"`
	BrandLine2 string `json:"brand_line2" validate:"max=200"`
	// CTALine1 and CTALine2 are shown on the end card.
	CTALine1 string `json:"cta_line1" validate:"max=200"`
	CTALine2 string `json:"cta_line2" validate:"max=200"`
	// Width and Height override the output size; both or neither.
	Width  int `json:"width" validate:"required_with=Height,omitempty,min=16,max=3840,even"`
	Height int `json:"height" validate:"required_with=Width,omitempty,min=16,max=2160,even"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
	// Stage is the render stage that failed, for RENDER_FAILED errors.
	Stage string `json:"stage,omitempty"`
	// Details carries the underlying diagnostic text.
	Details string `json:"details,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
