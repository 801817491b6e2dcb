package types

// SensorProfileDefinition is a custom sensor profile file: extra sensors
// registered after the built-in catalog.
type SensorProfileDefinition struct {
	Profile ProfileInfo        `json:"profile"`
	Sensors []SensorDefinition `json:"sensors"`
}

type ProfileInfo struct {
	ID          string `json:"id"`
	Vendor      string `json:"vendor,omitempty"`
	Model       string `json:"model,omitempty"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
}

type SensorDefinition struct {
	Name      string         `json:"name"`
	Kind      SensorKind     `json:"kind"`
	Addresses []uint16       `json:"addresses"`
	Unit      string         `json:"unit,omitempty"`
	Scale     float64        `json:"scale,omitempty"`
	Factors   []float64      `json:"factors,omitempty"`
	Absolute  bool           `json:"absolute,omitempty"`
	Min       *BoundDef      `json:"min,omitempty"`
	Max       *BoundDef      `json:"max,omitempty"`
	Options   []OptionDef    `json:"options,omitempty"`
	Bitmask   uint16         `json:"bitmask,omitempty"`
	Format    TimeFormatName `json:"time_format,omitempty"`
	Models    []string       `json:"models,omitempty"`
}

type SensorKind string

const (
	SensorKindPlain       SensorKind = "sensor"
	SensorKindMath        SensorKind = "math"
	SensorKindTemperature SensorKind = "temperature"
	SensorKindSerial      SensorKind = "serial"
	SensorKindFault       SensorKind = "fault"
	SensorKindEnum        SensorKind = "enum"
	SensorKindNumber      SensorKind = "number"
	SensorKindSelect      SensorKind = "select"
	SensorKindTime        SensorKind = "time"
)

// BoundDef sets exactly one of Value, Time or Ref.
type BoundDef struct {
	Value *float64 `json:"value,omitempty"`
	Time  string   `json:"time,omitempty"`
	Ref   string   `json:"ref,omitempty"`
}

type OptionDef struct {
	Code  uint16 `json:"code"`
	Label string `json:"label"`
}

type TimeFormatName string

const (
	TimeFormatDecimal TimeFormatName = "decimal"
	TimeFormatPacked  TimeFormatName = "packed"
)
