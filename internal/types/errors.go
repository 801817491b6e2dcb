package types

// Error codes carried in ErrorBody.Code. The numeric suffix is the HTTP
// status the code is sent with.
const (
	CodeSensorInvalid  = "SENSOR_400"
	CodeSensorNotFound = "SENSOR_404"
	CodeSensorReadOnly = "SENSOR_405"
	CodeSensorRejected = "SENSOR_422"
	CodeSensorInternal = "SENSOR_500"

	CodeInverterUnreachable = "INVERTER_502"

	CodeStorageFailed   = "STORAGE_500"
	CodeStorageDisabled = "STORAGE_503"

	CodeLoginInvalid  = "AUTH_400"
	CodeLoginRejected = "AUTH_401"
	CodeLoginDisabled = "AUTH_503"

	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
)

// ErrorBody is the payload of every failed API request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// BoundsDetails describes a write rejected by a sensor's range. Limit is
// the bound as resolved when the write was attempted, which may come from
// another sensor.
type BoundsDetails struct {
	Error string `json:"error"`
	Side  string `json:"side"`
	Limit any    `json:"limit"`
}

func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
