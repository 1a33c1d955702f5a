package presenter_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/deeflow/internal/adapter/presenter"
	"github.com/YoshitsuguKoike/deeflow/internal/application/dto"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
)

func TestJSONPresenter_PresentSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	p := presenter.NewJSONPresenter(buf)

	err := p.PresentSuccess("Run approved", &dto.ApproveRunOutput{Approved: true, RunID: "run-1", Phase: "plan"})
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(buf).Decode(&result))
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "Run approved", result["message"])

	data, ok := result["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "run-1", data["runId"])
	assert.Equal(t, "plan", data["phase"])
	assert.NotContains(t, data, "reason")
}

func TestJSONPresenter_PresentError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode interface{}
	}{
		{name: "plain error", err: errors.New("test error"), wantCode: nil},
		{name: "domain error", err: execution.ErrRunNotFound, wantCode: execution.ErrRunNotFound.Code},
		{name: "wrapped domain error", err: fmt.Errorf("approve: %w", execution.ErrFeedbackRequired), wantCode: execution.ErrFeedbackRequired.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			p := presenter.NewJSONPresenter(buf)

			assert.Equal(t, tt.err, p.PresentError(tt.err))

			var result map[string]interface{}
			require.NoError(t, json.NewDecoder(buf).Decode(&result))
			assert.Equal(t, false, result["success"])
			assert.Equal(t, tt.err.Error(), result["error"])
			assert.Equal(t, tt.wantCode, result["code"])
		})
	}
}
