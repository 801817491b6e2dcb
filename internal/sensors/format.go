package sensors

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Format renders a sensor value for display and MQTT payloads: integral
// floats without decimals, other floats with at most three decimals.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		if math.Trunc(x) == x && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		s := strings.TrimRight(strconv.FormatFloat(x, 'f', 3, 64), "0")
		s = strings.TrimSuffix(s, ".")
		if s == "-0" {
			return "0"
		}
		return s
	case float32:
		return Format(float64(x))
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
