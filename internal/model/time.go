package model

import (
	"strings"
	"time"
)

const timeFormat = "2006-01-02 15:04:05"

// LocalTime 以本地时区的 "YYYY-MM-DD HH:MM:SS" 格式序列化。
type LocalTime time.Time

func (t LocalTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).Local().Format(timeFormat) + `"`), nil
}

func (t *LocalTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*t = LocalTime(time.Time{})
		return nil
	}
	parsed, err := time.ParseInLocation(timeFormat, s, time.Local)
	if err != nil {
		return err
	}
	*t = LocalTime(parsed)
	return nil
}

func (t LocalTime) String() string {
	return time.Time(t).Local().Format(timeFormat)
}
