package types

// SensorInfo is the API view of a sensor.
type SensorInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Kind      SensorKind `json:"kind"`
	Addresses []uint16   `json:"addresses"`
	Unit      string     `json:"unit,omitempty"`
	Writable  bool       `json:"writable"`
	Value     any        `json:"value,omitempty"`
	Formatted string     `json:"formatted,omitempty"`
	Known     bool       `json:"known"`
	Min       any        `json:"min,omitempty"`
	Max       any        `json:"max,omitempty"`
	Options   []string   `json:"options,omitempty"`
	DependsOn []string   `json:"depends_on,omitempty"`
	Models    []string   `json:"models,omitempty"`
}

type WriteRequest struct {
	Value any `json:"value"`
}

type TokenRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

type WriteResponse struct {
	Sensor    string `json:"sensor"`
	Value     any    `json:"value"`
	Formatted string `json:"formatted"`
}
