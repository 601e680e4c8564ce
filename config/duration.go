package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Duration 可写成 "30s" 的时长
//
// JSON 中接受 Go 时长字符串或纳秒整数，输出总是字符串：
//
//	{"interval": "10s"}  等价于  {"interval": 10000000000}
type Duration time.Duration

// UnmarshalJSON 实现 json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("config: duration must be a string like \"30s\" or nanoseconds, got %s", data)
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON 输出时长字符串
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Duration 返回 time.Duration
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }
