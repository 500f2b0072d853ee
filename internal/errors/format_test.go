package errors

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatJSON_CoreError(t *testing.T) {
	err := New(ErrCodeAllSourcesFailed, "all sources failed", errors.New("dial timeout")).
		WithDetail("query", "刹车异响")

	data, marshalErr := FormatJSON(err)
	assert.NoError(t, marshalErr)

	var decoded jsonError
	assert.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ErrCodeAllSourcesFailed, decoded.Code)
	assert.Equal(t, "all sources failed", decoded.Message)
	assert.Equal(t, "dial timeout", decoded.Cause)
	assert.Equal(t, "刹车异响", decoded.Details["query"])
}

func TestFormatJSON_PlainError(t *testing.T) {
	data, err := FormatJSON(errors.New("plain failure"))
	assert.NoError(t, err)

	var decoded jsonError
	assert.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ErrCodeInternal, decoded.Code)
}

func TestFormatJSON_NilError(t *testing.T) {
	data, err := FormatJSON(nil)
	assert.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestFormatForLog_CoreError(t *testing.T) {
	err := New(ErrCodeRemoteTimeout, "remote timed out", nil).WithDetail("source", "remote")

	fields := FormatForLog(err)
	assert.Equal(t, ErrCodeRemoteTimeout, fields["error_code"])
	assert.Equal(t, "remote", fields["detail_source"])
}

func TestFormatForLog_NilError(t *testing.T) {
	assert.Nil(t, FormatForLog(nil))
}
