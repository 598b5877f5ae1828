package dto

// Box is a face region in image pixel coordinates.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// RegisterBase64Request is the JSON form of a registration. Image may be a
// bare base64 string or a data URL.
type RegisterBase64Request struct {
	Name       string `json:"name" binding:"required"`
	Image      string `json:"image" binding:"required"`
	Identifier string `json:"identifier,omitempty"`
	FaceBox    *Box   `json:"face_box,omitempty"`
}

type RegisterResponse struct {
	Success       bool    `json:"success"`
	Identifier    string  `json:"identifier"`
	DisplayName   string  `json:"display_name"`
	CreatedAt     string  `json:"created_at"`
	ImageRef      string  `json:"image_ref"`
	EmbeddingRef  string  `json:"embedding_ref"`
	Confidence    float64 `json:"confidence"`
	FacesDetected int     `json:"faces_detected"`
}

type RecognizeBase64Request struct {
	Image string `json:"image" binding:"required"`
}

type IdentityResponse struct {
	Identifier  string `json:"identifier"`
	DisplayName string `json:"display_name"`
	ImageURL    string `json:"image_url"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type IdentityListResponse struct {
	Identities []IdentityResponse `json:"identities"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
}

type ListQuery struct {
	Search   string `form:"search"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=500"`
}

type DeleteManyRequest struct {
	Identifiers []string `json:"identifiers" binding:"required,min=1"`
	DryRun      bool     `json:"dry_run"`
}

// ErrorResponse carries the error kind so clients never parse messages.
// Gate failures also report the measured value and its threshold.
type ErrorResponse struct {
	Error       string   `json:"error"`
	Kind        string   `json:"kind"`
	Stage       string   `json:"stage,omitempty"`
	Identifier  string   `json:"identifier,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	Measured    *float64 `json:"measured,omitempty"`
	Threshold   *float64 `json:"threshold,omitempty"`
}

// WSEvent is a WebSocket message for real-time identity changes.
type WSEvent struct {
	Type        string `json:"type"` // registered, deleted
	Identifier  string `json:"identifier"`
	DisplayName string `json:"display_name,omitempty"`
	Timestamp   string `json:"timestamp"`
}
